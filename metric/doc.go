// Package metric provides the Prometheus metrics registry shared by all mavrouter
// components.
//
// A MetricsRegistry owns a private prometheus.Registry with two kinds of content:
//
//  1. Core metrics (Metrics): per-link byte, frame and error counters labelled by
//     link name, updated by link readers and the router.
//  2. Component metrics: counters and gauges owned by a single package (router, hub,
//     pubsub) and registered through MetricsRegistrar under an owner name.
//
// Components accept a *MetricsRegistry in their deps struct. A nil registry disables
// metrics for that component entirely; Metrics methods are nil-safe for this reason.
//
//	registry := metric.NewMetricsRegistry()
//	http.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
package metric
