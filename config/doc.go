// Package config loads the mavrouter process configuration.
//
// Configuration is built in layers: the built-in defaults, then each JSON
// file added with AddLayer (objects merge key by key, other values replace),
// then environment overrides:
//
//	MAVROUTER_NATS_URL     nats.url, also sets nats.enabled
//	MAVROUTER_NATS_TOKEN   nats.token
//	MAVROUTER_STORE_PATH   store.path
//	MAVROUTER_HTTP_ADDR    http.addr
//
// Durations may be written as Go duration strings ("500ms", "2s") or as
// nanosecond counts.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/field.json")
//	cfg, err := loader.Load()
//
// The merged result is validated with struct tags and a few cross-field
// rules: the kv store requires NATS, the file store requires a path.
//
// Example:
//
//	{
//	  "operator": {"system_id": 255, "component_id": 190},
//	  "heartbeat_interval": "1s",
//	  "store": {"kind": "kv", "bucket": "mavrouter_links"},
//	  "nats": {"enabled": true, "url": "nats://localhost:4222"},
//	  "http": {"enabled": true, "addr": ":8080"},
//	  "reader": {"rate_hz": 100, "priority": "normal"}
//	}
package config
