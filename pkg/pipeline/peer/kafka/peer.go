package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"go.uber.org/zap"
)

// PeerKafka implements the source and sink for Kafka
type PeerKafka struct {
	producer sarama.SyncProducer
	sarama   *sarama.Config
	logger   *zap.Logger
	newGroup func(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
	config   Config
}

func New() *PeerKafka {
	return &PeerKafka{
		logger:   zap.NewNop(),
		newGroup: sarama.NewConsumerGroup,
	}
}

func (p *PeerKafka) Connect(config map[string]any, logger *zap.Logger) error {
	if logger != nil {
		p.logger = logger
	}

	var cfg Config
	if err := pipeline.DecodeConfig(config, &cfg); err != nil {
		return fmt.Errorf("failed to decode Kafka config: %w", err)
	}
	cfg.setDefaults()

	saramaConfig, err := cfg.ToSaramaConfig()
	if err != nil {
		return err
	}

	if len(cfg.Topics) > 0 {
		admin, err := sarama.NewClusterAdmin(cfg.Brokers, saramaConfig)
		if err != nil {
			return fmt.Errorf("failed to create cluster admin: %w", err)
		}
		err = ensureTopics(admin, cfg, p.logger)
		admin.Close()
		if err != nil {
			return err
		}
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p.producer = producer
	p.sarama = saramaConfig
	p.config = cfg
	return nil
}

// Pub sends payload to topic and waits for the broker acknowledgement.
func (p *PeerKafka) Pub(_ context.Context, topic string, payload []byte) error {
	if p.producer == nil {
		return pipeline.ErrNotConnected
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message produced",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Sub joins the configured consumer group on topic and blocks until ctx is
// done. Sessions that end because a handler failed are rejoined, which
// redelivers the failed message.
func (p *PeerKafka) Sub(ctx context.Context, topic string, h pipeline.Handler) error {
	if p.sarama == nil {
		return pipeline.ErrNotConnected
	}

	group, err := p.newGroup(p.config.Brokers, p.config.GroupID, p.sarama)
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			p.logger.Error("consumer group error", zap.Error(err))
		}
	}()

	handler := &groupHandler{handler: h, logger: p.logger}
	p.logger.Info("consuming", zap.String("topic", topic), zap.String("group", p.config.GroupID))
	for {
		if err := group.Consume(ctx, []string{topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			p.logger.Error("consume session failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (p *PeerKafka) Type() pipeline.ConnectorType {
	return pipeline.ConnectorTypePubSub
}

func (p *PeerKafka) Disconnect() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func init() {
	pipeline.RegisterConnector(pipeline.ConnectorKafka, func() pipeline.Connector { return New() })
}
