package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"go.uber.org/zap"
)

// groupHandler feeds claimed messages to a pipeline.Handler. Offsets are only
// marked for handled messages. A handler error ends the claim, which ends the
// group session, so the next session resumes from the unmarked message.
type groupHandler struct {
	handler pipeline.Handler
	logger  *zap.Logger
}

func (g *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	g.logger.Info("consumer group session started",
		zap.String("member", sess.MemberID()),
		zap.Int32("generation", sess.GenerationID()),
		zap.Any("claims", sess.Claims()))
	return nil
}

func (g *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	g.logger.Debug("consumer group session ended", zap.String("member", sess.MemberID()))
	return nil
}

func (g *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			m := pipeline.Message{
				Topic:   msg.Topic,
				Key:     msg.Key,
				Payload: msg.Value,
				ID:      fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
			}
			if err := g.handler(sess.Context(), m); err != nil {
				g.logger.Warn("message not acknowledged, ending claim for redelivery",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				return err
			}
			sess.MarkMessage(msg, "")

		case <-sess.Context().Done():
			return nil
		}
	}
}
