// Package natsbridge republishes hub notifications on NATS subjects.
//
// Subjects, with the default prefix:
//
//	mavrouter.identity.systems                  identity_list_changed
//	mavrouter.identity.<sys>.components         component_list_changed
//	mavrouter.message.<sys>.<comp>.<KIND>       message_updated
//
// Every body is a JSON Envelope stamped with the bridge instance id, so
// several routers can share one NATS server. With AcceptCommands set the
// bridge also listens on mavrouter.command.arm for ArmCommand bodies and
// forwards them to the hub.
package natsbridge
