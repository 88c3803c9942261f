package forward

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/edgeflare/catalogd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wines = "code,name,vintage,type,country,price\n1,Malbec,2019,Red,Argentina,12.5\n2,Rioja,2018,Red,Spain,20\n"

// recorder collects published payloads and fails after failAfter messages when set.
type recorder struct {
	payloads  []string
	failAfter int
}

func (r *recorder) Pub(_ context.Context, topic string, payload []byte) error {
	if r.failAfter > 0 && len(r.payloads) == r.failAfter {
		return errors.New("broker down")
	}
	r.payloads = append(r.payloads, topic+"|"+string(payload))
	return nil
}

// saramaPublisher sends through a sarama SyncProducer.
type saramaPublisher struct {
	producer sarama.SyncProducer
}

func (p saramaPublisher) Pub(_ context.Context, topic string, payload []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(payload)})
	return err
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFile, m)

	m, err = ParseMode("lines")
	require.NoError(t, err)
	assert.Equal(t, ModeLines, m)

	_, err = ParseMode("words")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestForwardFileMode(t *testing.T) {
	r := &recorder{}
	n, err := New(r, "catalog", ModeFile, "test", nil).Forward(context.Background(), strings.NewReader(wines))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"catalog|" + wines}, r.payloads)
}

func TestForwardFileModeEmpty(t *testing.T) {
	r := &recorder{}
	n, err := New(r, "catalog", ModeFile, "test", nil).Forward(context.Background(), strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, r.payloads)
}

func TestForwardLinesMode(t *testing.T) {
	r := &recorder{}
	n, err := New(r, "catalog", ModeLines, "test", nil).Forward(context.Background(), strings.NewReader("a,b\n\nc,d"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"catalog|a,b", "catalog|", "catalog|c,d"}, r.payloads)
}

func TestForwardStopsOnPublishError(t *testing.T) {
	r := &recorder{failAfter: 1}
	before := testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("flaky"))

	n, err := New(r, "catalog", ModeLines, "flaky", nil).Forward(context.Background(), strings.NewReader("a\nb\nc\n"))
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("flaky")))
}

func TestForwardFileThroughKafkaProducer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wines.csv")
	require.NoError(t, os.WriteFile(path, []byte(wines), 0o600))

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != wines {
			return errors.New("payload is not the whole file")
		}
		return nil
	})
	defer producer.Close()

	n, err := New(saramaPublisher{producer}, "catalog", ModeFile, "kafka", nil).ForwardFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestForwardFileMissing(t *testing.T) {
	_, err := New(&recorder{}, "catalog", ModeFile, "test", nil).ForwardFile(context.Background(), "/does/not/exist.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
