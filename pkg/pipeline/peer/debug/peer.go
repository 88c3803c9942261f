package debug

import (
	"context"

	"github.com/edgeflare/catalogd/pkg/pipeline"
	"go.uber.org/zap"
)

// PeerDebug is a sink that logs published payloads
type PeerDebug struct {
	logger *zap.Logger
}

func (p *PeerDebug) Pub(_ context.Context, topic string, payload []byte) error {
	p.logger.Info(pipeline.ConnectorDebug,
		zap.String("topic", topic),
		zap.Int("bytes", len(payload)),
		zap.ByteString("payload", payload))
	return nil
}

func (p *PeerDebug) Connect(_ map[string]any, logger *zap.Logger) error {
	p.logger = logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return nil
}

func (p *PeerDebug) Sub(context.Context, string, pipeline.Handler) error {
	return pipeline.ErrConnectorTypeMismatch
}

func (p *PeerDebug) Type() pipeline.ConnectorType {
	return pipeline.ConnectorTypePub
}

func (p *PeerDebug) Disconnect() error {
	return nil
}

func init() {
	pipeline.RegisterConnector(pipeline.ConnectorDebug, func() pipeline.Connector { return &PeerDebug{logger: zap.NewNop()} })
}
