package authgate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func auditTestConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	return cfg
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
	return AuditEvent{}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	e := newEngineForTest(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	registerAlice(t, e)

	if _, err := e.Login(context.Background(), "alice", "correct-pass1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	e.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no sink calls, got %d", sink.Count())
	}
}

func TestAuditLoginEventFields(t *testing.T) {
	sink := NewChannelSink(64)
	e := newEngineForTest(t, auditTestConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	u := registerAlice(t, e)
	if ev := nextEvent(t, sink); ev.EventType != AuditRegisterSuccess || ev.UserID != u.ID {
		t.Fatalf("unexpected register event %+v", ev)
	}

	ctx := WithClientIP(context.Background(), "192.0.2.7")
	if _, err := e.Login(ctx, "alice", "correct-pass1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ev := nextEvent(t, sink)
	if ev.EventType != AuditLoginSuccess || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.UserID != u.ID || ev.IP != "192.0.2.7" {
		t.Fatalf("unexpected subject or ip: %+v", ev)
	}
	if _, err := ulid.ParseStrict(ev.ID); err != nil {
		t.Fatalf("event id %q is not a ULID: %v", ev.ID, err)
	}
	if !ev.Timestamp.Equal(e.clock.Now()) {
		t.Fatalf("timestamp %v does not follow engine clock", ev.Timestamp)
	}
}

func TestAuditRefreshFailuresDistinguished(t *testing.T) {
	sink := NewChannelSink(64)
	e := newEngineForTest(t, auditTestConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	registerAlice(t, e)
	nextEvent(t, sink)
	ctx := context.Background()

	pair, err := e.Login(ctx, "alice", "correct-pass1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	nextEvent(t, sink)

	e.clock.Advance(25 * time.Hour)
	_, _ = e.Refresh(ctx, pair.RefreshToken)
	ev := nextEvent(t, sink)
	if ev.EventType != AuditRefreshExpired || ev.Reason != string(auditErrRefreshExpired) || ev.Success {
		t.Fatalf("unexpected expired event %+v", ev)
	}

	_, _ = e.Refresh(ctx, pair.RefreshToken)
	ev = nextEvent(t, sink)
	if ev.EventType != AuditRefreshInvalid || ev.Reason != string(auditErrRefreshNotFound) {
		t.Fatalf("unexpected invalid event %+v", ev)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditCloseReleasesBlockedEmitter(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	emitted := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(emitted)
	}()

	closed := make(chan struct{})
	go func() {
		dispatcher.Close()
		close(closed)
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked emit should return once close starts")
	}

	select {
	case <-closed:
		t.Fatal("close must wait for queued events to be delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not finish after the sink drained")
	}
}

func TestAuditBlockedEmitCountsDropOnCancel(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	dispatcher.Emit(ctx, AuditEvent{EventType: "e3"})

	if got := dispatcher.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
}

func TestAuditSinkTimeoutBoundsDelivery(t *testing.T) {
	got := make(chan time.Duration, 1)
	sink := sinkFunc(func(ctx context.Context, _ AuditEvent) {
		deadline, ok := ctx.Deadline()
		if !ok {
			got <- 0
			return
		}
		got <- time.Until(deadline)
	})
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:     true,
		BufferSize:  1,
		SinkTimeout: time.Second,
	}, sink)
	defer dispatcher.Close()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	select {
	case left := <-got:
		if left <= 0 || left > time.Second {
			t.Fatalf("unexpected sink deadline %v", left)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink not called")
	}
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, ev AuditEvent) { f(ctx, ev) }

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		ID:        "01J0000000000000000000000A",
		Timestamp: time.Now().UTC(),
		EventType: AuditLoginSuccess,
		UserID:    7,
		IP:        "127.0.0.1",
		Success:   true,
	})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("not a JSON line: %v", err)
	}
	if decoded["event_type"] != "login_success" || decoded["user_id"] != float64(7) {
		t.Fatalf("unexpected JSON %s", line)
	}
}

func TestAuditSlogSinkLevels(t *testing.T) {
	var buf syncBuffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), AuditEvent{EventType: AuditLoginFailure, Reason: "invalid_credentials"})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"WARN"`) || !strings.Contains(lines[0], `"reason":"invalid_credentials"`) {
		t.Fatalf("unexpected failure line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"INFO"`) {
		t.Fatalf("unexpected success line %s", lines[1])
	}
}

func TestAuditMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	sink := MultiSink{a, nil, b}

	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})

	if a.count.Load() != 2 || b.count.Load() != 2 {
		t.Fatalf("expected both sinks to see 2 events, got %d and %d", a.count.Load(), b.count.Load())
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	if sink.Count() != 1 {
		t.Fatalf("expected buffered event drained on close, got %d", sink.Count())
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf syncBuffer
	e := newEngineForTest(t, auditTestConfig(), func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&buf)) })
	registerAlice(t, e)
	ctx := context.Background()

	pair, err := e.Login(ctx, "alice", "correct-pass1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _ = e.Login(ctx, "alice", "wrong-pass12")
	if _, err := e.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_ = e.Logout(ctx, "some-token")
	e.Close()

	out := buf.String()
	for _, secret := range []string{"correct-pass1", "wrong-pass12", pair.RefreshToken, pair.AccessToken, "some-token"} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked %q", secret)
		}
	}
	if !strings.Contains(out, AuditRefreshSuccess) {
		t.Fatalf("expected refresh_success in %s", out)
	}
}
