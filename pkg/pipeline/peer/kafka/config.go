package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/IBM/sarama"
)

// Config represents Kafka-specific configuration
type Config struct {
	Brokers  []string `mapstructure:"brokers"`
	Version  string   `mapstructure:"version"`
	ClientID string   `mapstructure:"clientId"`
	// GroupID is the consumer group used by Sub.
	GroupID string `mapstructure:"groupId"`
	// InitialOffset is where a new consumer group starts: "oldest" or "newest".
	InitialOffset string `mapstructure:"initialOffset"`
	// Topics are created on connect when missing.
	Topics      []string `mapstructure:"topics"`
	Partitions  int32    `mapstructure:"partitions"`
	Replicas    int16    `mapstructure:"replicas"`
	RetentionMS int64    `mapstructure:"retentionMs"`
	SASL        SASL     `mapstructure:"sasl"`
	TLS         TLS      `mapstructure:"tls"`
}

// SASL represents SASL authentication configuration
type SASL struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Algorithm string `mapstructure:"algorithm"`
	Enable    bool   `mapstructure:"enable"`
}

// TLS represents TLS configuration
type TLS struct {
	CertFile   string `mapstructure:"certFile"`
	KeyFile    string `mapstructure:"keyFile"`
	CAFile     string `mapstructure:"caFile"`
	Enable     bool   `mapstructure:"enable"`
	SkipVerify bool   `mapstructure:"skipVerify"`
}

func (c *Config) setDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Version == "" {
		c.Version = "2.1.1"
	}
	if c.ClientID == "" {
		c.ClientID = "catalogd"
	}
	if c.GroupID == "" {
		c.GroupID = "catalogd"
	}
	if c.InitialOffset == "" {
		c.InitialOffset = "oldest"
	}
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if c.Replicas == 0 {
		c.Replicas = 1
	}
	if c.RetentionMS == 0 {
		c.RetentionMS = 7 * 24 * 60 * 60 * 1000 // 7 days
	}
}

// ToSaramaConfig converts the Config to a sarama.Config
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("error parsing Kafka version: %w", err)
	}
	conf.Version = version
	conf.ClientID = c.ClientID

	if c.SASL.Enable {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch c.SASL.Algorithm {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "plain", "":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	if c.TLS.Enable {
		tlsConfig, err := createTLSConfiguration(c.TLS)
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 5
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true

	switch c.InitialOffset {
	case "oldest":
		conf.Consumer.Offsets.Initial = sarama.OffsetOldest
	case "newest":
		conf.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		return nil, fmt.Errorf("invalid initial offset: %s", c.InitialOffset)
	}
	conf.Consumer.Return.Errors = true
	conf.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}

	return conf, nil
}

func createTLSConfiguration(tlsCfg TLS) (*tls.Config, error) {
	t := &tls.Config{
		InsecureSkipVerify: tlsCfg.SkipVerify,
	}

	if tlsCfg.CAFile != "" {
		caCert, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("no certificates found in CA file")
		}
		t.RootCAs = caCertPool
	}

	if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}

	return t, nil
}
