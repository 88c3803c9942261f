package ingest

import (
	"context"
	"testing"

	"github.com/edgeflare/catalogd/pkg/csvbatch"
	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/edgeflare/catalogd/pkg/reconcile"
	"github.com/edgeflare/catalogd/pkg/store/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const header = "code,name,vintage,type,country,price\n"

func newTestHandler(t *testing.T, source string) (*Handler, *memory.Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	s := memory.New()
	h := NewHandler(csvbatch.NewParser(logger), reconcile.New(s, reconcile.WithLogger(logger)), logger, source)
	return h, s, logs
}

func TestHandleReconcilesBatch(t *testing.T) {
	ctx := context.Background()
	h, s, logs := newTestHandler(t, "handle-ok")

	res, err := h.Handle(ctx, []byte(header+
		"1,Malbec,2019,Red,Argentina,12.5\n"+
		"2,Rioja,2018,Red,Spain,20\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.Inserted)
	assert.Equal(t, 2, s.Len())

	res, err = h.Handle(ctx, []byte(header+"1,Malbec,2019,Red,Argentina,14\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Updated)
	assert.Equal(t, 1, s.Count(1))

	assert.Equal(t, 2, logs.FilterMessage("batch reconciled").Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Batches.WithLabelValues("handle-ok", "ok")))
}

func TestHandleSkippedRowsAreNotFatal(t *testing.T) {
	h, s, _ := newTestHandler(t, "handle-skip")
	before := testutil.ToFloat64(metrics.RowsSkipped.WithLabelValues("price"))

	res, err := h.Handle(context.Background(), []byte(header+
		"1,Malbec,2019,Red,Argentina,abc\n"+
		"2,Rioja,2018,Red,Spain,20\n"))
	require.NoError(t, err)
	require.Len(t, res.Batch.Skipped, 1)
	assert.Equal(t, 1, res.Report.Inserted)
	assert.Equal(t, 0, s.Count(1))
	assert.Equal(t, 1, s.Count(2))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RowsSkipped.WithLabelValues("price")))
}

func TestHandleStructuralErrorIsFatal(t *testing.T) {
	h, s, logs := newTestHandler(t, "handle-fatal")

	_, err := h.Handle(context.Background(), []byte(header+
		"1,Malbec,2019,Red,Argentina,12.5\n"+
		"2,Rioja,2018\n"))
	assert.ErrorIs(t, err, csvbatch.ErrStructural)
	assert.Equal(t, 0, s.Len(), "no record of a broken message is applied")
	assert.Equal(t, 1, logs.FilterMessage("rejecting message").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Batches.WithLabelValues("handle-fatal", "fatal")))
}

func TestHandleHeaderOnly(t *testing.T) {
	h, s, _ := newTestHandler(t, "handle-empty")

	res, err := h.Handle(context.Background(), []byte(header))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Batch.Rows)
	assert.Equal(t, 0, res.Report.Applied())
	assert.Equal(t, 0, s.Len())
}
