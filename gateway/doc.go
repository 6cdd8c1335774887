// Package gateway exposes the router and hub over HTTP.
//
// REST endpoints (JSON bodies, errors as {"error": "...", "status": N}):
//
//	GET    /api/links                          list links with stats and routes
//	POST   /api/links                          add a link (AddLinkRequest)
//	GET    /api/links/{name}                   one link
//	DELETE /api/links/{name}?purge=true        remove, optionally from saved settings
//	PUT    /api/links/{name}/heartbeat         {"enabled": bool}
//	GET    /api/links/{name}/routes            {"destinations": [...]}
//	PUT    /api/links/{name}/routes            replace destinations
//	GET    /api/routing                        full routing table
//	POST   /api/settings                       save link settings to the store
//	GET    /api/serial-ports                   serial devices on the host
//	GET    /api/identities                     known (system, component) pairs
//	DELETE /api/identities                     forget every identity
//	GET    /api/operator                       identity used for outbound frames
//	PUT    /api/operator                       change it
//	GET    /api/systems                        known system ids
//	GET    /api/systems/{s}/components         components of a system
//	GET    /api/systems/{s}/components/{c}/messages         latest message per kind
//	GET    /api/systems/{s}/components/{c}/messages/{kind}  one kind
//	POST   /api/systems/{s}/components/{c}/arm              {"link", "arm", "force"}
//
// Components may be given by number or by name ("AUTOPILOT1").
//
// GET /events upgrades to a websocket. The server sends a welcome message with
// the client id, then every hub event as JSON. Slow clients miss events rather
// than stall the hub.
//
// GET /metrics serves Prometheus metrics when a registry is configured.
// GET /healthz aggregates per-link health and any extra checks; it answers
// 503 only when something is unhealthy.
//
// Every response carries X-Request-ID, taken from the request or generated.
package gateway
