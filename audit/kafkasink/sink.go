package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/segmentio/kafka-go"
)

const defaultWriteTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures a Kafka-backed sink.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Sink implements authgate.AuditSink.
type Sink struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger
	failed  atomic.Uint64
}

var _ authgate.AuditSink = (*Sink)(nil)

// New builds a sink with a kafka.Writer on cfg.Brokers.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: brokers must not be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewWithWriter(w, cfg.WriteTimeout, cfg.Logger), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter, timeout time.Duration, logger *slog.Logger) *Sink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Emit serializes event and writes it. Failures are logged and counted, never
// returned.
func (s *Sink) Emit(ctx context.Context, event authgate.AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}

	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if event.UserID != 0 {
		msg.Key = []byte(strconv.FormatInt(event.UserID, 10))
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.fail(event, err)
	}
}

func (s *Sink) fail(event authgate.AuditEvent, err error) {
	s.failed.Add(1)
	s.logger.Warn("audit: kafka emit failed",
		slog.String("audit_id", event.ID),
		slog.String("event_type", event.EventType),
		slog.Any("error", err),
	)
}

// Failed reports how many events could not be written.
func (s *Sink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// Close flushes pending messages and closes the writer.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
