// Package hub tracks every remote identity seen on any link.
//
// A Hub keeps one aggregator.Aggregator per (system id, component id) pair,
// created on the first frame from that pair. New identities are announced on
// the event bus: a new system id produces EventSystemsChanged with the full
// system list, a new component under a known system produces
// EventComponentsChanged for that system only. Every stored message produces
// EventMessageUpdated.
//
// The hub also owns the operator identity stamped on outbound frames. It
// composes heartbeats for the router and arm or disarm commands, which it
// hands to a LinkWriter.
package hub
