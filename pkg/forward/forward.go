// Package forward publishes the content of a local file to a topic.
package forward

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edgeflare/catalogd/pkg/metrics"
	"go.uber.org/zap"
)

// Mode selects how a file is split into messages.
type Mode string

const (
	// ModeFile sends the whole file as one message.
	ModeFile Mode = "file"
	// ModeLines sends every line verbatim as its own message.
	ModeLines Mode = "lines"
)

var ErrInvalidMode = errors.New("invalid forward mode")

// maxLineSize bounds a single line in ModeLines.
const maxLineSize = 1 << 20

// ParseMode returns the Mode for s; empty selects ModeFile.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFile:
		return ModeFile, nil
	case ModeLines:
		return ModeLines, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Pub(ctx context.Context, topic string, payload []byte) error
}

// Forwarder publishes files to one topic.
type Forwarder struct {
	pub       Publisher
	logger    *zap.Logger
	topic     string
	connector string
	mode      Mode
}

// New returns a Forwarder publishing to topic through pub. connector labels
// publish error metrics.
func New(pub Publisher, topic string, mode Mode, connector string, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeFile
	}
	return &Forwarder{
		pub:       pub,
		logger:    logger,
		topic:     topic,
		connector: connector,
		mode:      mode,
	}
}

// ForwardFile publishes the file at path and returns the number of messages sent.
func (f *Forwarder) ForwardFile(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	n, err := f.Forward(ctx, file)
	if err != nil {
		return n, err
	}
	f.logger.Info("file forwarded",
		zap.String("path", path),
		zap.String("topic", f.topic),
		zap.String("mode", string(f.mode)),
		zap.Int("messages", n))
	return n, nil
}

// Forward publishes the content of r and returns the number of messages sent.
// It stops at the first failed publish.
func (f *Forwarder) Forward(ctx context.Context, r io.Reader) (int, error) {
	switch f.mode {
	case ModeFile:
		data, err := io.ReadAll(r)
		if err != nil {
			return 0, fmt.Errorf("read input: %w", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			f.logger.Warn("nothing to forward, input is empty")
			return 0, nil
		}
		if err := f.publish(ctx, data); err != nil {
			return 0, err
		}
		return 1, nil

	case ModeLines:
		sent := 0
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			line := bytes.Clone(scanner.Bytes())
			if err := f.publish(ctx, line); err != nil {
				return sent, err
			}
			sent++
		}
		if err := scanner.Err(); err != nil {
			return sent, fmt.Errorf("read input: %w", err)
		}
		return sent, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, f.mode)
}

func (f *Forwarder) publish(ctx context.Context, payload []byte) error {
	if err := f.pub.Pub(ctx, f.topic, payload); err != nil {
		metrics.PublishErrors.WithLabelValues(f.connector).Inc()
		f.logger.Error("error sending data to topic", zap.String("topic", f.topic), zap.Error(err))
		return fmt.Errorf("publish to %s: %w", f.topic, err)
	}
	f.logger.Debug("sent message to topic", zap.String("topic", f.topic), zap.Int("bytes", len(payload)))
	return nil
}
