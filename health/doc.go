// Package health turns link and connection state into a healthy, degraded or
// unhealthy verdict that can be aggregated into one process status.
package health
