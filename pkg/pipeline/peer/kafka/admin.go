package kafka

import (
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ensureTopics creates the topics that do not exist yet.
func ensureTopics(admin sarama.ClusterAdmin, cfg Config, logger *zap.Logger) error {
	if len(cfg.Topics) == 0 {
		return nil
	}

	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	retention := strconv.FormatInt(cfg.RetentionMS, 10)
	for _, topic := range cfg.Topics {
		if _, ok := existing[topic]; ok {
			continue
		}

		detail := &sarama.TopicDetail{
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.Replicas,
			ConfigEntries: map[string]*string{
				"retention.ms": &retention,
			},
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		logger.Info("topic created", zap.String("topic", topic), zap.Int32("partitions", cfg.Partitions))
	}
	return nil
}
