package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RecordsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogd_records_reconciled_total",
			Help: "Total number of reconciled records by action (inserted, updated, failed)",
		},
		[]string{"action"},
	)

	KeyConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogd_key_conflicts_total",
			Help: "Total number of inserts rejected by the store as duplicate codes and retried",
		},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogd_rows_skipped_total",
			Help: "Total number of CSV rows dropped for conversion errors by field",
		},
		[]string{"field"},
	)

	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogd_batches_total",
			Help: "Total number of handled messages by status (ok, fatal, dead_lettered)",
		},
		[]string{"source", "status"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogd_batch_duration_seconds",
			Help:    "Duration of parsing and reconciling one message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogd_publish_errors_total",
			Help: "Total number of publish errors by connector",
		},
		[]string{"connector"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options.
// The server shuts down gracefully when ctx is canceled; wg is released once it has stopped.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := defaultPrometheusServerOptions()
	logger := zap.NewNop()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
