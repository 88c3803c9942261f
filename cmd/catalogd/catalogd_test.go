package catalogd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/catalogd/pkg/catalog"
	"github.com/edgeflare/catalogd/pkg/config"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/edgeflare/catalogd/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestOpenMemoryStore(t *testing.T) {
	s, closeStore, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &memory.Store{}, s)
}

func TestRouterServesCatalog(t *testing.T) {
	withConfig(t, &config.Config{
		REST:   config.RESTConfig{BaseURL: "/data-service", CORSOrigins: []string{"https://shop.example.com"}},
		Ingest: config.IngestConfig{ConflictRetries: 1},
	})

	engine := newEngine(memory.New())
	report := engine.Reconcile(context.Background(), []catalog.Record{
		{Code: 1, Name: "Malbec", Vintage: 2019, Type: "red", Country: "Argentina", Price: 12.5},
	})
	require.Equal(t, 1, report.Inserted)

	srv := httptest.NewServer(newRouter(engine).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/data-service/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var rec catalog.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "Malbec", rec.Name)

	resp, err = http.Get(srv.URL + "/all")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "routes live under the base URL")
}

func TestConnectPeer(t *testing.T) {
	withConfig(t, &config.Config{
		Peers: []pipeline.Peer{{Name: "stdout", ConnectorName: pipeline.ConnectorDebug}},
	})
	m := pipeline.NewManager(nil)
	defer m.Close()

	c, err := connectPeer(context.Background(), m, "stdout")
	require.NoError(t, err)
	assert.True(t, pipeline.CanPub(c))

	again, err := connectPeer(context.Background(), m, "stdout")
	require.NoError(t, err)
	assert.Same(t, c, again)

	_, err = connectPeer(context.Background(), m, "missing")
	assert.True(t, err != nil && strings.Contains(err.Error(), "not configured"))
}

func TestStartConsumerRejectsPublishOnlyPeer(t *testing.T) {
	withConfig(t, &config.Config{
		Peers:  []pipeline.Peer{{Name: "stdout", ConnectorName: pipeline.ConnectorDebug}},
		Ingest: config.IngestConfig{Source: "stdout", Topic: "catalog"},
	})
	m := pipeline.NewManager(nil)
	defer m.Close()

	err := startConsumer(context.Background(), m, newEngine(memory.New()), nil, nil)
	assert.ErrorIs(t, err, pipeline.ErrConnectorTypeMismatch)
}
