package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"go.uber.org/zap"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Pub(ctx context.Context, topic string, payload []byte) error
}

// Subscriber delivers the messages of a topic to a handler until ctx is done.
type Subscriber interface {
	Sub(ctx context.Context, topic string, h pipeline.Handler) error
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithMaxDeliveries bounds how often a rejected message is delivered. After
// the last attempt the message is dead-lettered (or dropped) and acknowledged.
// Zero, the default, redelivers without limit.
func WithMaxDeliveries(n int) ConsumerOption {
	return func(c *Consumer) {
		c.maxDeliveries = n
	}
}

// WithDeadLetter publishes messages that exhausted their deliveries to topic.
func WithDeadLetter(pub Publisher, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetter = pub
		c.deadLetterTopic = topic
	}
}

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(logger *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer subscribes a Handler to a topic and maps its outcome to
// acknowledgements.
type Consumer struct {
	handler         *Handler
	deadLetter      Publisher
	logger          *zap.Logger
	attempts        map[string]int
	deadLetterTopic string
	maxDeliveries   int
	mu              sync.Mutex
}

// NewConsumer returns a Consumer for h.
func NewConsumer(h *Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		handler:  h,
		logger:   zap.NewNop(),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes topic from src until ctx is done.
func (c *Consumer) Run(ctx context.Context, src Subscriber, topic string) error {
	c.logger.Info("ingestion consumer started",
		zap.String("topic", topic),
		zap.Int("maxDeliveries", c.maxDeliveries),
		zap.String("deadLetterTopic", c.deadLetterTopic))
	return src.Sub(ctx, topic, c.HandleMessage)
}

// HandleMessage is the pipeline.Handler of the consumer. A nil return acks msg.
func (c *Consumer) HandleMessage(ctx context.Context, msg pipeline.Message) error {
	_, err := c.handler.Handle(ctx, msg.Payload)
	if err == nil {
		c.forget(msg.ID)
		return nil
	}

	attempt := c.attempt(msg)
	if c.maxDeliveries <= 0 || attempt < c.maxDeliveries {
		c.logger.Warn("message rejected, requesting redelivery",
			zap.String("id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	if c.deadLetter == nil {
		c.forget(msg.ID)
		metrics.Batches.WithLabelValues(c.handler.source, "dropped").Inc()
		c.logger.Error("dropping message after max deliveries",
			zap.String("id", msg.ID),
			zap.Int("attempt", attempt),
			zap.ByteString("payload", msg.Payload),
			zap.Error(err))
		return nil
	}

	if perr := c.deadLetter.Pub(ctx, c.deadLetterTopic, msg.Payload); perr != nil {
		metrics.PublishErrors.WithLabelValues("dead_letter").Inc()
		c.logger.Error("failed to dead-letter message", zap.String("id", msg.ID), zap.Error(perr))
		return fmt.Errorf("dead-letter %s: %w", c.deadLetterTopic, perr)
	}

	c.forget(msg.ID)
	metrics.Batches.WithLabelValues(c.handler.source, "dead_lettered").Inc()
	c.logger.Warn("message dead-lettered",
		zap.String("id", msg.ID),
		zap.String("topic", c.deadLetterTopic),
		zap.Int("attempt", attempt),
		zap.Error(err))
	return nil
}

// attempt returns the delivery attempt of msg. The transport's own count is
// preferred; otherwise failures are counted per message ID. Messages without
// an ID are always on their first attempt.
func (c *Consumer) attempt(msg pipeline.Message) int {
	if msg.Delivery > 0 {
		return msg.Delivery
	}
	if msg.ID == "" {
		return 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[msg.ID]++
	return c.attempts[msg.ID]
}

func (c *Consumer) forget(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	delete(c.attempts, id)
	c.mu.Unlock()
}
