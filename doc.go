// Package mavrouter manages MAVLink links and routes frames between them.
//
// # Layout
//
// Wire and link layer:
//   - transport: serial and UDP byte pipes behind one Transport interface
//   - mavlink: frame decoding over a byte stream, encoding from an operator identity
//   - link: a Reader per link that polls its transport, decodes frames and reports stats
//
// Routing and state:
//   - router: the named link registry, one-way routes with cycle rejection,
//     periodic heartbeats and persisted link settings
//   - store: link settings in a YAML file or a NATS key-value bucket
//   - aggregator: latest message per kind with recent receive times
//   - hub: one aggregator per (system, component) identity, identity and
//     message events, arm and disarm commands
//
// Surfaces:
//   - gateway: REST API, websocket event stream, Prometheus metrics and health
//   - natsbridge: hub events republished on NATS subjects, arm commands accepted
//   - cmd/mavrouter: the process that wires everything from a layered JSON config
//
// Shared infrastructure lives in errors, metric, config, health, natsclient and
// pkg/ (buffer, pubsub, retry, textenum, worker).
//
// # Data flow
//
//	transport ──bytes──▶ link.Reader ──Frame──▶ router ──raw bytes──▶ routed links
//	                                              │
//	                                              └──Frame──▶ hub ──Event──▶ gateway, natsbridge
//
// Frames are relayed byte for byte; the router never re-encodes. A frame is
// written to every destination of its source link before the next frame from
// that link is decoded.
//
// # Quick start
//
//	go build ./cmd/mavrouter
//	./mavrouter -config configs/base.json
//	curl -X POST localhost:8080/api/links -d '{"name": "GCS",
//	  "transport": {"kind": "udp", "udp": {"local_port": 14551, "host_address": "127.0.0.1", "host_port": 14550}}}'
package mavrouter
