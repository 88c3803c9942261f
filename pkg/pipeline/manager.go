package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Manager connects configured peers and hands out their connectors.
type Manager struct {
	peers      map[string]Connector
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
	mu         sync.RWMutex
}

// NewManager returns a Manager. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		peers:  make(map[string]Connector),
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// Init connects every peer, retrying failed connects with backoff.
// Peers connected before a failure stay registered; call Close to release them.
func (m *Manager) Init(ctx context.Context, peers []Peer) error {
	m.logger.Info("initializing peers", zap.Int("peerCount", len(peers)))
	for _, p := range peers {
		if _, err := m.Connect(ctx, p); err != nil {
			return err
		}
	}
	m.logger.Info("initialized all peers", zap.Int("totalPeers", len(peers)))
	return nil
}

// Connect connects a single peer and registers it under its name.
func (m *Manager) Connect(ctx context.Context, p Peer) (Connector, error) {
	if p.Name == "" {
		return nil, errors.New("peer name is required")
	}

	m.mu.RLock()
	_, exists := m.peers[p.Name]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("peer %s already connected", p.Name)
	}

	c, err := NewConnector(p.ConnectorName)
	if err != nil {
		return nil, fmt.Errorf("failed to add peer %s: %w", p.Name, err)
	}

	logger := m.logger.With(zap.String("peer", p.Name), zap.String("connector", p.ConnectorName))
	op := func() error {
		return c.Connect(p.Config, logger)
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("retrying connection", zap.Error(err), zap.Duration("delay", delay))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(m.newBackOff(), ctx), notify); err != nil {
		logger.Error("failed to initialize connector after retries", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize connector %s: %w", p.Name, err)
	}

	m.mu.Lock()
	m.peers[p.Name] = c
	m.mu.Unlock()

	logger.Info("connected peer")
	return c, nil
}

// Get returns the connector of a connected peer.
func (m *Manager) Get(name string) (Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.peers[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("peer %s not found", name)
}

// Close disconnects every peer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, c := range m.peers {
		if err := c.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", name, err))
		}
		delete(m.peers, name)
	}
	return errors.Join(errs...)
}
