package catalogd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/catalogd/pkg/config"
	"github.com/edgeflare/catalogd/pkg/csvbatch"
	"github.com/edgeflare/catalogd/pkg/ingest"
	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/edgeflare/catalogd/pkg/pgx"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/edgeflare/catalogd/pkg/reconcile"
	"github.com/edgeflare/catalogd/pkg/store"
	"github.com/edgeflare/catalogd/pkg/store/memory"
	"github.com/edgeflare/catalogd/pkg/store/pg"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// openStore returns the configured record store and a func releasing it.
func openStore(ctx context.Context, sc config.StoreConfig) (store.RecordStore, func(), error) {
	if sc.Driver != config.DriverPostgres {
		logger.Info("using in-memory record store")
		return memory.New(), func() {}, nil
	}

	pool, err := pgx.NewPool(ctx, sc.Postgres.PoolConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	s := pg.New(pool, sc.Postgres.Config)
	if sc.Postgres.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate record store: %w", err)
		}
	}
	return s, pool.Close, nil
}

func newEngine(s store.RecordStore) *reconcile.Engine {
	return reconcile.New(s,
		reconcile.WithLogger(logger),
		reconcile.WithConflictRetry(cfg.Ingest.ConflictRetries, cfg.Ingest.ConflictBackoff),
	)
}

// connectPeer returns the connector of the configured peer name, connecting it on first use.
func connectPeer(ctx context.Context, m *pipeline.Manager, name string) (pipeline.Connector, error) {
	if c, err := m.Get(name); err == nil {
		return c, nil
	}
	p, err := cfg.Peer(name)
	if err != nil {
		return nil, err
	}
	return m.Connect(ctx, p)
}

// startConsumer subscribes the ingestion consumer to the source peer. A
// consumer that stops with an error reports it on errChan.
func startConsumer(ctx context.Context, m *pipeline.Manager, engine *reconcile.Engine, wg *sync.WaitGroup, errChan chan<- error) error {
	ic := cfg.Ingest

	src, err := connectPeer(ctx, m, ic.Source)
	if err != nil {
		return fmt.Errorf("connect source: %w", err)
	}
	if !pipeline.CanSub(src) {
		return fmt.Errorf("peer %q: %w", ic.Source, pipeline.ErrConnectorTypeMismatch)
	}

	handler := ingest.NewHandler(csvbatch.NewParser(logger), engine, logger, ic.Source)
	opts := []ingest.ConsumerOption{
		ingest.WithMaxDeliveries(ic.MaxDeliveries),
		ingest.WithConsumerLogger(logger.With(zap.String("source", ic.Source))),
	}

	if ic.DeadLetterTopic != "" {
		name := cmp.Or(ic.DeadLetterPeer, ic.Source)
		dl, err := connectPeer(ctx, m, name)
		if err != nil {
			return fmt.Errorf("connect dead-letter peer: %w", err)
		}
		if !pipeline.CanPub(dl) {
			return fmt.Errorf("peer %q: %w", name, pipeline.ErrConnectorTypeMismatch)
		}
		opts = append(opts, ingest.WithDeadLetter(dl, ic.DeadLetterTopic))
	}

	consumer := ingest.NewConsumer(handler, opts...)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx, src, ic.Topic); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case errChan <- fmt.Errorf("consumer %s: %w", ic.Source, err):
			default:
			}
		}
	}()
	return nil
}

func startMetrics(ctx context.Context, wg *sync.WaitGroup) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.StartPrometheusServer(ctx, wg, &metrics.PromServerOpts{
		Logger: logger,
		Addr:   cfg.Metrics.Addr,
		Path:   cfg.Metrics.Path,
	})
}

// waitForShutdown blocks until a termination signal or an error on errChan,
// cancels the run and waits up to shutdownTimeout for wg.
func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup, errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received termination signal, shutting down gracefully", zap.Stringer("signal", sig))
	case runErr = <-errChan:
		logger.Error("stopping after error", zap.Error(runErr))
	}
	cancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out", zap.Duration("timeout", shutdownTimeout))
	}
	return runErr
}
