// Package nats provides the NATS JetStream connector.
//
// Connect ensures a file-backed stream (default `CATALOG`) covering the
// configured subjects (default `catalog` and `catalog.>`). Sub pulls through a
// durable consumer with explicit acks: a message whose handler fails is
// nacked and redelivered by the server, at most `maxDeliver` times. The
// delivery count reported by the server is passed on as Message.Delivery.
//
// NATS subject (aka topic) patterns:
//   - Case-sensitive, dot-separated, no spaces
//   - Valid chars: alphanumeric, `-` or `_`
//   - Max length: 255 bytes
package nats
