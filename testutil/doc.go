// Package testutil holds test doubles shared by the mavrouter packages.
//
// Transports:
//
//   - MockTransport: an in-memory transport.Transport. Inject queues bytes
//     for ReadBytes, Written records WriteBytes, FailReads and FailWrites
//     inject errors.
//   - MockFactory: a transport.Factory that builds MockTransports and keeps
//     them by TransportKey ("udp:<port>" or "serial:<device>").
//
// Frames:
//
//   - Encode, HeartbeatBytes: wire bytes from a given identity.
//   - Frame, HeartbeatFrame, AttitudeFrame: decoded mavlink.Frame values.
//
// Writers and messaging:
//
//   - MockLinkWriter records writes addressed to named links.
//   - MockNATSClient records publishes and honours NATS subject wildcards.
//   - MockKVStore is an in-memory bucket with the natsclient.KVStore method set.
//
// All mocks are safe for concurrent use. Prefer real dependencies when they
// are cheap: loopback UDP for transports, natsclient.NewTestClient for NATS.
package testutil
