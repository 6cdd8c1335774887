// Package store persists the link set and routing table between runs.
//
// Two Store implementations exist:
//
//   - FileStore writes one YAML document and replaces it atomically through
//     a temp file and rename.
//   - KVStore keeps one JetStream KV key per link ("link.<base64url name>")
//     and one "routing" key holding the routing table as JSON.
//
// Both return empty Settings when nothing was saved yet, and DeleteLink also
// prunes every route that names the deleted link.
package store
