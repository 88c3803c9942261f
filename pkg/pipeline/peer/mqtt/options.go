package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// TLSOptions holds TLS configuration decoded from the peer config
type TLSOptions struct {
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
	ServerName         string `mapstructure:"serverName"`
	CAFile             string `mapstructure:"caFile"`
	CertFile           string `mapstructure:"certFile"`
	KeyFile            string `mapstructure:"keyFile"`
	CACert             string `mapstructure:"caCert"`
	ClientCert         string `mapstructure:"clientCert"`
	ClientKey          string `mapstructure:"clientKey"`
}

// Config is the MQTT peer config
type Config struct {
	TLS            *TLSOptions   `mapstructure:"tls"`
	Servers        []string      `mapstructure:"servers"`
	ClientID       string        `mapstructure:"clientId"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	KeepAlive      time.Duration `mapstructure:"keepAlive"`
	QoS            byte          `mapstructure:"qos"`
	CleanSession   bool          `mapstructure:"cleanSession"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{"tcp://127.0.0.1:1883"}
	}
	if c.ClientID == "" {
		c.ClientID = "catalogd-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
}

func (c *Config) validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("invalid qos %d", c.QoS)
	}
	return nil
}

// toPahoOptions converts the Config to paho client options. Acks are sent
// manually, after a message was handled.
func (c *Config) toPahoOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	for _, server := range c.Servers {
		opts.AddBroker(server)
	}

	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
	}
	if c.Password != "" {
		opts.SetPassword(c.Password)
	}
	if c.TLS != nil {
		tlsConfig, err := createTLSConfig(c.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetConnectTimeout(c.ConnectTimeout)
	opts.SetKeepAlive(c.KeepAlive)
	opts.SetCleanSession(c.CleanSession)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetResumeSubs(true)
	opts.SetAutoAckDisabled(true)

	return opts, nil
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	// Load CA certificate
	if tlsOpts.CAFile != "" || tlsOpts.CACert != "" {
		caCertPool := x509.NewCertPool()

		var caCert []byte
		var err error

		if tlsOpts.CAFile != "" {
			caCert, err = os.ReadFile(tlsOpts.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
		} else {
			caCert = []byte(tlsOpts.CACert)
		}

		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}

		config.RootCAs = caCertPool
	}

	// Load client certificate and key
	if (tlsOpts.CertFile != "" && tlsOpts.KeyFile != "") ||
		(tlsOpts.ClientCert != "" && tlsOpts.ClientKey != "") {

		var cert tls.Certificate
		var err error

		if tlsOpts.CertFile != "" && tlsOpts.KeyFile != "" {
			cert, err = tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
		} else {
			cert, err = tls.X509KeyPair([]byte(tlsOpts.ClientCert), []byte(tlsOpts.ClientKey))
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
