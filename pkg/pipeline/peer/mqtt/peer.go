package mqtt

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"go.uber.org/zap"
)

// PeerMQTT implements the source and sink functionality for MQTT
type PeerMQTT struct {
	*Client
	logger *zap.Logger
	Config Config
}

func New() *PeerMQTT {
	return &PeerMQTT{logger: zap.NewNop()}
}

func (p *PeerMQTT) Connect(config map[string]any, logger *zap.Logger) error {
	if logger != nil {
		p.logger = logger
	}
	if err := pipeline.DecodeConfig(config, &p.Config); err != nil {
		return fmt.Errorf("failed to decode MQTT config: %w", err)
	}
	p.Config.setDefaults()
	if err := p.Config.validate(); err != nil {
		return err
	}

	opts, err := p.Config.toPahoOptions()
	if err != nil {
		return err
	}

	p.Client = NewClient(opts, p.logger)
	if err := p.Client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (p *PeerMQTT) Pub(_ context.Context, topic string, payload []byte) error {
	if p.Client == nil {
		return pipeline.ErrNotConnected
	}
	return p.Client.Publish(topic, p.Config.QoS, false, payload)
}

// Sub subscribes to topic and blocks until ctx is done. Messages are acked
// only after the handler succeeds; an unacked message is redelivered by the
// broker when the session resumes.
func (p *PeerMQTT) Sub(ctx context.Context, topic string, h pipeline.Handler) error {
	if p.Client == nil {
		return pipeline.ErrNotConnected
	}

	if err := p.Client.Subscribe(topic, p.Config.QoS, p.callback(ctx, h)); err != nil {
		return fmt.Errorf("mqtt subscribe failed: %w", err)
	}
	p.logger.Info("consuming", zap.String("topic", topic))

	<-ctx.Done()
	if err := p.Client.Unsubscribe(topic); err != nil {
		p.logger.Warn("unsubscribe", zap.Error(err))
	}
	return nil
}

func (p *PeerMQTT) callback(ctx context.Context, h pipeline.Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		m := pipeline.Message{Topic: msg.Topic(), Payload: msg.Payload()}
		if err := h(ctx, m); err != nil {
			p.logger.Warn("message not acknowledged",
				zap.String("topic", msg.Topic()),
				zap.Uint16("messageId", msg.MessageID()),
				zap.Error(err))
			return
		}
		msg.Ack()
	}
}

func (p *PeerMQTT) Type() pipeline.ConnectorType {
	return pipeline.ConnectorTypePubSub
}

func (p *PeerMQTT) Disconnect() error {
	if p.Client != nil && p.Client.client != nil {
		p.Client.Disconnect()
	}
	return nil
}

func init() {
	pipeline.RegisterConnector(pipeline.ConnectorMQTT, func() pipeline.Connector { return New() })
}
