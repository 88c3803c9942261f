// Package reconcile merges parsed catalog records into a store.RecordStore.
//
// Each record is looked up by code and then inserted or overwritten. The
// lookup and the write for one code run under a per-code lock, so two
// concurrent batches carrying the same new code produce one insert followed
// by one update. Across processes the store's unique index is the backstop:
// an insert rejected with store.ErrDuplicateKey is retried as a fresh
// lookup, which then finds the row and updates it.
//
// Batches are not transactional. A record that fails is reported and the
// remaining records are still applied.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/edgeflare/catalogd/pkg/store"
	"go.uber.org/zap"
)

// Action is what reconciliation did with one record.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionFailed   Action = "failed"
)

// Outcome is the result of reconciling one record.
type Outcome struct {
	Err    error
	Action Action
	Code   int
}

// Report collects the outcomes of one Reconcile call in input order.
type Report struct {
	Outcomes []Outcome
	Inserted int
	Updated  int
	Failed   int
}

// Applied returns the number of records persisted.
func (r Report) Applied() int {
	return r.Inserted + r.Updated
}

// Err joins the errors of failed records, nil if none failed.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("code %d: %w", o.Code, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConflictRetry sets how many times an insert rejected as a duplicate code is
// retried, and the pause between attempts.
func WithConflictRetry(retries uint64, interval time.Duration) Option {
	return func(e *Engine) {
		e.conflictRetries = retries
		e.conflictInterval = interval
	}
}

// Engine reconciles records into a store.
type Engine struct {
	store            store.RecordStore
	locks            *keyLocks
	logger           *zap.Logger
	conflictRetries  uint64
	conflictInterval time.Duration
}

// New returns an Engine writing to s.
func New(s store.RecordStore, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		locks:            newKeyLocks(),
		logger:           zap.NewNop(),
		conflictRetries:  3,
		conflictInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile applies records in order. It never stops early: per-record failures
// are logged and reported in the returned Report.
func (e *Engine) Reconcile(ctx context.Context, records []catalog.Record) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(records))}

	for _, rec := range records {
		action, err := e.apply(ctx, rec)
		report.Outcomes = append(report.Outcomes, Outcome{Code: rec.Code, Action: action, Err: err})
		metrics.RecordsReconciled.WithLabelValues(string(action)).Inc()

		switch action {
		case ActionInserted:
			report.Inserted++
			e.logger.Info("record inserted", zap.Int("code", rec.Code), zap.Stringer("record", rec))
		case ActionUpdated:
			report.Updated++
			e.logger.Info("record updated", zap.Int("code", rec.Code), zap.Stringer("record", rec))
		case ActionFailed:
			report.Failed++
			e.logger.Error("failed to reconcile record", zap.Int("code", rec.Code), zap.Error(err))
		}
	}

	return report
}

// apply runs find-then-insert-or-update for one record under its code lock.
func (e *Engine) apply(ctx context.Context, rec catalog.Record) (Action, error) {
	unlock := e.locks.Lock(rec.Code)
	defer unlock()

	var action Action
	op := func() error {
		existing, err := e.store.FindByKey(ctx, rec.Code)
		if err != nil {
			return backoff.Permanent(err)
		}

		if existing != nil {
			existing.Overwrite(rec)
			if err := e.store.Update(ctx, existing); err != nil {
				return backoff.Permanent(err)
			}
			action = ActionUpdated
			return nil
		}

		if _, err := e.store.Insert(ctx, rec); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				metrics.KeyConflicts.Inc()
				e.logger.Debug("insert lost a race, retrying as update", zap.Int("code", rec.Code))
				return err
			}
			return backoff.Permanent(err)
		}
		action = ActionInserted
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.conflictInterval), e.conflictRetries)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return ActionFailed, err
	}
	return action, nil
}

// Get returns the stored record for code.
func (e *Engine) Get(ctx context.Context, code int) (catalog.Record, error) {
	existing, err := e.store.FindByKey(ctx, code)
	if err != nil {
		return catalog.Record{}, err
	}
	if existing == nil {
		return catalog.Record{}, catalog.ErrNotFound
	}
	return existing.Record, nil
}

// List returns every stored record.
func (e *Engine) List(ctx context.Context) ([]catalog.Record, error) {
	return e.store.List(ctx)
}

// Modify applies fn to the stored record for code and persists the result.
// The code itself cannot be changed by fn.
func (e *Engine) Modify(ctx context.Context, code int, fn func(*catalog.Record) error) (catalog.Record, error) {
	unlock := e.locks.Lock(code)
	defer unlock()

	existing, err := e.store.FindByKey(ctx, code)
	if err != nil {
		return catalog.Record{}, err
	}
	if existing == nil {
		return catalog.Record{}, catalog.ErrNotFound
	}

	if err := fn(&existing.Record); err != nil {
		return catalog.Record{}, err
	}
	existing.Code = code

	if err := e.store.Update(ctx, existing); err != nil {
		return catalog.Record{}, err
	}
	e.logger.Info("record modified", zap.Int("code", code))
	return existing.Record, nil
}

// Delete removes the stored record for code.
func (e *Engine) Delete(ctx context.Context, code int) error {
	unlock := e.locks.Lock(code)
	defer unlock()

	ok, err := e.store.DeleteByKey(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return catalog.ErrNotFound
	}
	e.logger.Info("record deleted", zap.Int("code", code))
	return nil
}
