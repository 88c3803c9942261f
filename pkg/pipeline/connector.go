package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type ConnectorType int

const (
	ConnectorTypeUnknown ConnectorType = iota
	ConnectorTypePub                   // Sink / publish-only
	ConnectorTypeSub                   // Source / subscribe-only
	ConnectorTypePubSub                // Source and sink
)

var (
	ErrConnectorTypeMismatch = errors.New("connector type mismatch")
	ErrNotConnected          = errors.New("connector not connected")
	ErrUnknownConnector      = errors.New("unknown connector")
)

// Message is one payload delivered by a source connector.
type Message struct {
	Topic   string
	Key     []byte
	Payload []byte
	// ID identifies the message across redeliveries, eg topic/partition/offset.
	ID string
	// Delivery is the 1-based delivery attempt when the transport tracks it, 0 otherwise.
	Delivery int
}

// Handler processes one message. Returning nil acknowledges the message;
// returning an error asks the transport to redeliver it.
type Handler func(ctx context.Context, msg Message) error

// A Connector represents a messaging transport a peer talks to.
type Connector interface {
	// Connect initializes the connector with its connector-specific config.
	Connect(config map[string]any, logger *zap.Logger) error

	// Pub sends payload to topic.
	Pub(ctx context.Context, topic string, payload []byte) error

	// Sub delivers messages from topic to h, one at a time, until ctx is done
	// or the subscription fails.
	Sub(ctx context.Context, topic string, h Handler) error

	// Type returns the type of the connector (SUB, PUB, or PUBSUB)
	Type() ConnectorType

	Disconnect() error
}

// Factory returns a fresh, unconnected Connector.
type Factory func() Connector

// Predefined connectors
const (
	ConnectorDebug = "debug"
	ConnectorKafka = "kafka"
	ConnectorMQTT  = "mqtt"
	ConnectorNATS  = "nats"
)

var (
	connectors = make(map[string]Factory)
	mu         sync.RWMutex
)

// RegisterConnector adds a connector factory to the registry.
// The name parameter is used as a key to identify the connector type.
func RegisterConnector(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	connectors[name] = f
}

// NewConnector returns a new instance of the named connector.
func NewConnector(name string) (Connector, error) {
	mu.RLock()
	f, ok := connectors[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return f(), nil
}

// Connectors returns the registered connector names, sorted.
func Connectors() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(connectors))
	for name := range connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanPub reports whether c can act as a sink.
func CanPub(c Connector) bool {
	t := c.Type()
	return t == ConnectorTypePub || t == ConnectorTypePubSub
}

// CanSub reports whether c can act as a source.
func CanSub(c Connector) bool {
	t := c.Type()
	return t == ConnectorTypeSub || t == ConnectorTypePubSub
}
