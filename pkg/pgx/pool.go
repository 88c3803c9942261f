package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNoConnString = errors.New("pgx: connection string required")

// PoolConfig configures the record store connection pool.
type PoolConfig struct {
	ConnString string `mapstructure:"connString"`
	MaxConns   int32  `mapstructure:"maxConns"`
	// ConnectTimeout bounds the total time spent retrying the initial ping.
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// NewPool creates a pool and pings it with exponential backoff until
// ConnectTimeout (default 30s) elapses or ctx is done.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.ConnString == "" {
		return nil, ErrNoConnString
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parsing connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 30 * time.Second
	}

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("postgres not ready, retrying", zap.Error(err), zap.Duration("delay", delay))
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database))
	return pool, nil
}
