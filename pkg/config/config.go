// Package config loads the catalogd configuration with viper.
//
// Settings come from a YAML file (--config, or catalogd.yaml in
// $HOME/.config or the working directory), overridden by CATALOGD_ prefixed
// environment variables where dots become underscores, eg
// CATALOGD_INGEST_TOPIC or CATALOGD_STORE_POSTGRES_CONNSTRING.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/catalogd/pkg/forward"
	"github.com/edgeflare/catalogd/pkg/pgx"
	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/edgeflare/catalogd/pkg/store/pg"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds application-wide configuration
type Config struct {
	LogLevel string          `mapstructure:"logLevel"`
	Store    StoreConfig     `mapstructure:"store"`
	Peers    []pipeline.Peer `mapstructure:"peers"`
	Ingest   IngestConfig    `mapstructure:"ingest"`
	Forward  ForwardConfig   `mapstructure:"forward"`
	REST     RESTConfig      `mapstructure:"rest"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

type StoreConfig struct {
	// Driver is memory or postgres.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	pgx.PoolConfig `mapstructure:",squash"`
	pg.Config      `mapstructure:",squash"`
	// Migrate creates the records table on startup.
	Migrate bool `mapstructure:"migrate"`
}

type IngestConfig struct {
	// Source is the name of the peer consumed from.
	Source string `mapstructure:"source"`
	Topic  string `mapstructure:"topic"`
	// MaxDeliveries bounds deliveries of a rejected message, 0 means unlimited.
	MaxDeliveries int `mapstructure:"maxDeliveries"`
	// DeadLetterTopic receives messages that exhausted MaxDeliveries.
	DeadLetterTopic string `mapstructure:"deadLetterTopic"`
	// DeadLetterPeer publishes dead letters, defaults to Source.
	DeadLetterPeer string `mapstructure:"deadLetterPeer"`
	// ConflictRetries bounds retries of an insert rejected as a duplicate code.
	ConflictRetries uint64        `mapstructure:"conflictRetries"`
	ConflictBackoff time.Duration `mapstructure:"conflictBackoff"`
}

type ForwardConfig struct {
	// Sink is the name of the peer published to.
	Sink  string `mapstructure:"sink"`
	Topic string `mapstructure:"topic"`
	// Mode is file or lines.
	Mode string `mapstructure:"mode"`
}

type RESTConfig struct {
	ListenAddr  string    `mapstructure:"listenAddr"`
	BaseURL     string    `mapstructure:"baseURL"`
	CORSOrigins []string  `mapstructure:"corsOrigins"`
	TLS         TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// SetDefaults registers the default of every key on v. Environment
// overrides only apply to keys viper knows about, so every key has one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.postgres.connString", "")
	v.SetDefault("store.postgres.maxConns", 4)
	v.SetDefault("store.postgres.connectTimeout", 30*time.Second)
	v.SetDefault("store.postgres.schema", "public")
	v.SetDefault("store.postgres.table", pg.DefaultTable)
	v.SetDefault("store.postgres.migrate", true)

	v.SetDefault("ingest.source", "kafka")
	v.SetDefault("ingest.topic", "catalog")
	v.SetDefault("ingest.maxDeliveries", 0)
	v.SetDefault("ingest.deadLetterTopic", "")
	v.SetDefault("ingest.deadLetterPeer", "")
	v.SetDefault("ingest.conflictRetries", 3)
	v.SetDefault("ingest.conflictBackoff", 50*time.Millisecond)

	v.SetDefault("forward.sink", "kafka")
	v.SetDefault("forward.topic", "catalog")
	v.SetDefault("forward.mode", string(forward.ModeFile))

	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.baseURL", "/data-service")
	v.SetDefault("rest.corsOrigins", []string{})
	v.SetDefault("rest.tls.certFile", "")
	v.SetDefault("rest.tls.keyFile", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("peers", []map[string]any{
		{"name": "kafka", "connector": pipeline.ConnectorKafka, "config": map[string]any{}},
	})
}

// Load reads config from file and environment into v and decodes it.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("catalogd")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CATALOGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.Postgres.ConnString == "" {
			errs = append(errs, errors.New("store.postgres.connString is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if _, err := forward.ParseMode(c.Forward.Mode); err != nil {
		errs = append(errs, fmt.Errorf("forward.mode: %w", err))
	}
	if c.Ingest.MaxDeliveries < 0 {
		errs = append(errs, errors.New("ingest.maxDeliveries must not be negative"))
	}

	seen := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.Name == "" || p.ConnectorName == "" {
			errs = append(errs, errors.New("every peer needs a name and a connector"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate peer %q", p.Name))
		}
		seen[p.Name] = true
	}

	return errors.Join(errs...)
}

// Peer returns the configured peer called name.
func (c *Config) Peer(name string) (pipeline.Peer, error) {
	for _, p := range c.Peers {
		if p.Name == name {
			return p, nil
		}
	}
	return pipeline.Peer{}, fmt.Errorf("peer %q is not configured", name)
}

// Version is set at build time with -ldflags "-X github.com/edgeflare/catalogd/pkg/config.Version=..."
var Version = "dev"
