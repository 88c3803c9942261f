package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/edgeflare/catalogd/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
	acked   bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 7 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              { m.acked = true }

func TestConfig(t *testing.T) {
	var c Config
	require.NoError(t, pipeline.DecodeConfig(map[string]any{
		"servers":        []string{"tcp://broker:1883"},
		"connectTimeout": "2s",
		"username":       "catalogd",
	}, &c))
	c.setDefaults()
	require.NoError(t, c.validate())

	assert.True(t, strings.HasPrefix(c.ClientID, "catalogd-"))
	assert.Equal(t, byte(1), c.QoS)
	assert.Equal(t, 2*time.Second, c.ConnectTimeout)

	opts, err := c.toPahoOptions()
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.True(t, opts.AutoAckDisabled)
	assert.Equal(t, "catalogd", opts.Username)

	c.QoS = 3
	assert.Error(t, c.validate())
}

func TestTLSConfig(t *testing.T) {
	cfg, err := createTLSConfig(&TLSOptions{ServerName: "broker", InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, "broker", cfg.ServerName)

	_, err = createTLSConfig(&TLSOptions{CACert: "not a pem"})
	assert.ErrorContains(t, err, "failed to parse CA certificate")
}

func TestCallbackAcksHandledMessages(t *testing.T) {
	p := New()
	var got pipeline.Message
	cb := p.callback(context.Background(), func(_ context.Context, m pipeline.Message) error {
		got = m
		return nil
	})

	msg := &fakeMessage{topic: "catalog", payload: []byte("code\n1")}
	cb(nil, msg)
	assert.True(t, msg.acked)
	assert.Equal(t, "catalog", got.Topic)
	assert.Equal(t, []byte("code\n1"), got.Payload)
}

func TestCallbackLeavesFailedMessagesUnacked(t *testing.T) {
	p := New()
	cb := p.callback(context.Background(), func(context.Context, pipeline.Message) error {
		return errors.New("truncated row")
	})

	msg := &fakeMessage{topic: "catalog"}
	cb(nil, msg)
	assert.False(t, msg.acked)
}

func TestNotConnected(t *testing.T) {
	p := New()
	assert.ErrorIs(t, p.Pub(context.Background(), "catalog", nil), pipeline.ErrNotConnected)
	assert.ErrorIs(t, p.Sub(context.Background(), "catalog", nil), pipeline.ErrNotConnected)
	assert.NoError(t, p.Disconnect())
}
