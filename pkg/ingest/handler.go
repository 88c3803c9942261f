// Package ingest turns topic messages into reconciled catalog records.
//
// A Handler parses one message and reconciles its records. A Consumer drives
// a Handler from a pipeline connector and decides acknowledgement: a message
// is acknowledged when the Handler returns nil, including when rows were
// skipped or records failed to persist, and negatively acknowledged when the
// message is structurally broken so the transport delivers it again.
package ingest

import (
	"context"
	"time"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/csvbatch"
	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/edgeflare/catalogd/pkg/reconcile"
	"go.uber.org/zap"
)

// Parser parses one message payload.
type Parser interface {
	Parse(raw []byte) (*csvbatch.Batch, error)
}

// Reconciler applies parsed records to the store.
type Reconciler interface {
	Reconcile(ctx context.Context, records []catalog.Record) reconcile.Report
}

// Result describes one handled message.
type Result struct {
	Batch  *csvbatch.Batch
	Report reconcile.Report
}

// Handler runs parse then reconcile for one message.
type Handler struct {
	parser Parser
	engine Reconciler
	logger *zap.Logger
	source string
}

// NewHandler returns a Handler. source labels metrics and logs, typically the peer name.
func NewHandler(p Parser, r Reconciler, logger *zap.Logger, source string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		parser: p,
		engine: r,
		logger: logger.With(zap.String("source", source)),
		source: source,
	}
}

// Handle parses payload and reconciles its records. Only a structural parse
// error is returned; per-row and per-record failures are reported in Result.
func (h *Handler) Handle(ctx context.Context, payload []byte) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues(h.source).Observe(time.Since(start).Seconds())
	}()

	batch, err := h.parser.Parse(payload)
	if err != nil {
		metrics.Batches.WithLabelValues(h.source, "fatal").Inc()
		h.logger.Error("rejecting message", zap.Int("bytes", len(payload)), zap.Error(err))
		return Result{}, err
	}

	for _, skipped := range batch.Skipped {
		metrics.RowsSkipped.WithLabelValues(skipped.Field).Inc()
	}

	report := h.engine.Reconcile(ctx, batch.Records)
	metrics.Batches.WithLabelValues(h.source, "ok").Inc()

	h.logger.Info("batch reconciled",
		zap.Int("rows", batch.Rows),
		zap.Int("skipped", len(batch.Skipped)),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)))

	return Result{Batch: batch, Report: report}, nil
}
