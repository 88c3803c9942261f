package nats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// PeerNATS implements the source and sink for NATS JetStream
type PeerNATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	Config Config
}

// Config represents NATS configuration
type Config struct {
	Servers  []string `mapstructure:"servers"`
	Stream   string   `mapstructure:"stream"`
	Subjects []string `mapstructure:"subjects"`
	// Durable names the JetStream consumer used by Sub.
	Durable    string        `mapstructure:"durable"`
	MaxDeliver int           `mapstructure:"maxDeliver"`
	AckWait    time.Duration `mapstructure:"ackWait"`
	BatchSize  int           `mapstructure:"batchSize"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	TLS        struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.Stream = cmp.Or(c.Stream, "CATALOG")
	if len(c.Subjects) == 0 {
		c.Subjects = []string{"catalog", "catalog.>"}
	}
	c.Durable = cmp.Or(c.Durable, "catalogd")
	c.MaxDeliver = cmp.Or(c.MaxDeliver, 5)
	c.AckWait = cmp.Or(c.AckWait, time.Minute)
	c.BatchSize = cmp.Or(c.BatchSize, 10)
}

func New() *PeerNATS {
	return &PeerNATS{logger: zap.NewNop()}
}

// Connect establishes a connection to the NATS server and ensures the stream
func (p *PeerNATS) Connect(config map[string]any, logger *zap.Logger) error {
	if logger != nil {
		p.logger = logger
	}
	if err := pipeline.DecodeConfig(config, &p.Config); err != nil {
		return fmt.Errorf("decode NATS config: %w", err)
	}
	p.Config.setDefaults()

	opts := defaultOptions(p.Config)

	// Connect to first available server
	var err error
	for _, server := range p.Config.Servers {
		p.nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	if p.js, err = p.nc.JetStream(); err != nil {
		p.nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	if err := p.ensureStream(); err != nil {
		p.nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

// Pub publishes payload on subject topic and waits for the stream ack
func (p *PeerNATS) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.js == nil {
		return pipeline.ErrNotConnected
	}
	if _, err := p.js.Publish(topic, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Sub pulls messages of subject topic through the durable consumer. A handled
// message is acked; a failed one is nacked and redelivered by the server up to
// MaxDeliver times.
func (p *PeerNATS) Sub(ctx context.Context, topic string, h pipeline.Handler) error {
	if p.js == nil {
		return pipeline.ErrNotConnected
	}

	sub, err := p.js.PullSubscribe(topic, p.Config.Durable,
		nats.BindStream(p.Config.Stream),
		nats.AckExplicit(),
		nats.MaxDeliver(p.Config.MaxDeliver),
		nats.AckWait(p.Config.AckWait),
	)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	defer sub.Unsubscribe()

	p.logger.Info("consuming", zap.String("subject", topic), zap.String("durable", p.Config.Durable))
	for ctx.Err() == nil {
		msgs, err := sub.Fetch(p.Config.BatchSize, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return err
			}
			p.logger.Warn("fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			p.handle(ctx, msg, h)
		}
	}
	return nil
}

func (p *PeerNATS) handle(ctx context.Context, msg *nats.Msg, h pipeline.Handler) {
	m := pipeline.Message{Topic: msg.Subject, Payload: msg.Data}
	if meta, err := msg.Metadata(); err == nil {
		m.ID = fmt.Sprintf("%s/%d", meta.Stream, meta.Sequence.Stream)
		m.Delivery = int(meta.NumDelivered)
	}

	if err := h(ctx, m); err != nil {
		p.logger.Warn("message not acknowledged", zap.String("id", m.ID), zap.Int("delivery", m.Delivery), zap.Error(err))
		if err := msg.Nak(); err != nil {
			p.logger.Error("nak message", zap.Error(err))
		}
		return
	}
	if err := msg.Ack(); err != nil {
		p.logger.Error("ack message", zap.Error(err))
	}
}

// Type returns the connector type
func (p *PeerNATS) Type() pipeline.ConnectorType {
	return pipeline.ConnectorTypePubSub
}

// Disconnect drains and closes the NATS connection
func (p *PeerNATS) Disconnect() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}

// ensureStream creates or updates the stream
func (p *PeerNATS) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.Config.Stream,
		Subjects: p.Config.Subjects,
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := p.js.StreamInfo(p.Config.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = p.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			p.logger.Info("updated stream", zap.String("stream", p.Config.Stream))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.Config.Stream))
	return nil
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name || a.Storage != b.Storage || a.Replicas != b.Replicas {
		return false
	}

	if len(a.Subjects) != len(b.Subjects) {
		return false
	}

	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("catalogd"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}

func init() {
	pipeline.RegisterConnector(pipeline.ConnectorNATS, func() pipeline.Connector { return New() })
}
