// Package router keeps the registry of named links and relays frames between
// them.
//
// Each link pairs a transport.Transport with a link.Reader. Every decoded
// frame goes to the configured OnFrame handler (normally hub.Hub.Observe)
// and is then written unchanged to the destinations routed from its source
// link. Routing is directed and must stay acyclic; UpdateRouting rejects
// self-routes and any change that would close a loop.
//
// Run ticks once per heartbeat interval and writes the operator heartbeat to
// every link with emission switched on.
//
// Links and routes can be persisted through a store.Store with SaveSettings
// and recreated at startup with LoadSettings. A save never drops the record
// of a link that is merely not open; Remove with purgeSettings does.
package router
