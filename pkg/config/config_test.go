package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "catalog_records", cfg.Store.Postgres.Table)
	assert.Equal(t, "catalog", cfg.Ingest.Topic)
	assert.Equal(t, "kafka", cfg.Ingest.Source)
	assert.Equal(t, 0, cfg.Ingest.MaxDeliveries)
	assert.Equal(t, "file", cfg.Forward.Mode)
	assert.Equal(t, ":8080", cfg.REST.ListenAddr)
	assert.Equal(t, "/data-service", cfg.REST.BaseURL)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, pipeline.ConnectorKafka, cfg.Peers[0].ConnectorName)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
store:
  driver: postgres
  postgres:
    connString: postgres://localhost/catalog
    maxConns: 8
    connectTimeout: 5s
    table: wines
peers:
  - name: broker
    connector: nats
    config:
      servers: ["nats://localhost:4222"]
  - name: stdout
    connector: debug
ingest:
  source: broker
  maxDeliveries: 3
  deadLetterTopic: catalog.dead
rest:
  corsOrigins: ["https://shop.example.com"]
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/catalog", cfg.Store.Postgres.ConnString)
	assert.Equal(t, int32(8), cfg.Store.Postgres.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Store.Postgres.ConnectTimeout)
	assert.Equal(t, "wines", cfg.Store.Postgres.Table)
	assert.Equal(t, "public", cfg.Store.Postgres.Schema)
	assert.Equal(t, 3, cfg.Ingest.MaxDeliveries)
	assert.Equal(t, "catalog.dead", cfg.Ingest.DeadLetterTopic)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.REST.CORSOrigins)

	p, err := cfg.Peer("broker")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ConnectorNATS, p.ConnectorName)
	assert.NotNil(t, p.Config["servers"])

	_, err = cfg.Peer("missing")
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CATALOGD_INGEST_TOPIC", "wines")
	t.Setenv("CATALOGD_INGEST_MAXDELIVERIES", "7")
	t.Setenv("CATALOGD_REST_LISTENADDR", ":9090")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "wines", cfg.Ingest.Topic)
	assert.Equal(t, 7, cfg.Ingest.MaxDeliveries)
	assert.Equal(t, ":9090", cfg.REST.ListenAddr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown driver", "store:\n  driver: mongo\n", "unknown store.driver"},
		{"postgres without conn", "store:\n  driver: postgres\n", "connString is required"},
		{"bad forward mode", "forward:\n  mode: chunks\n", "forward.mode"},
		{"negative deliveries", "ingest:\n  maxDeliveries: -1\n", "must not be negative"},
		{"duplicate peer", "peers:\n  - {name: a, connector: debug}\n  - {name: a, connector: kafka}\n", "duplicate peer"},
		{"unnamed peer", "peers:\n  - {connector: debug}\n", "needs a name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
