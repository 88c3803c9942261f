package metrics

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsReconciledCounter(t *testing.T) {
	before := testutil.ToFloat64(RecordsReconciled.WithLabelValues("inserted"))
	RecordsReconciled.WithLabelValues("inserted").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecordsReconciled.WithLabelValues("inserted")))
}

func TestStartPrometheusServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	RecordsReconciled.WithLabelValues("updated")

	StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: "127.0.0.1:19177"})

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://127.0.0.1:19177/metrics")
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "catalogd_records_reconciled_total")

	cancel()
	wg.Wait()
}
