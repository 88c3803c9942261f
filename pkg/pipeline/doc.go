// Package pipeline connects catalogd to message transports.
//
// Each transport is a `Connector` registered by name from its peer package
// (peer/kafka, peer/nats, peer/mqtt, peer/debug). A `Peer` pairs a connector
// name with its config, and the `Manager` connects configured peers with
// retries. Sources deliver raw payloads to a `Handler`; a handler error asks
// the transport to redeliver the message.
package pipeline
