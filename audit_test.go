package contestauth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func drainEvents(sink *ChannelSink) []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}
	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "queued"})
	}
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: "late"})

	events := drainEvents(sink)
	if len(events) != 5 {
		t.Fatalf("delivered %d events, want 5", len(events))
	}
	for _, ev := range events {
		if ev.EventType != "queued" {
			t.Fatalf("unexpected event %q after close", ev.EventType)
		}
	}
}

func TestAuditDisabledIsNil(t *testing.T) {
	if d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}
	var d *auditDispatcher
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher is inert")
	}
}

func TestOTPFlowAuditTrail(t *testing.T) {
	sink := NewChannelSink(64)
	_, rdb := newTestRedis(t)
	mailer := newCaptureMailer()
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithUserStore(newMemUsers()).
		WithMailer(mailer).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.1.2.3"), "test-agent")
	if _, err := engine.IssueOTP(ctx, "a@x.com"); err != nil {
		t.Fatalf("IssueOTP: %v", err)
	}
	code := mailer.code("a@x.com")
	_, _ = engine.VerifyOTP(ctx, "a@x.com", wrongCode(code))
	engine.Close()

	events := drainEvents(sink)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != auditEventOTPIssued || !events[0].Success || events[0].IP != "10.1.2.3" || events[0].UserAgent != "test-agent" {
		t.Fatalf("issue event: %+v", events[0])
	}
	rejected := events[1]
	if rejected.EventType != auditEventOTPRejected || rejected.Error != string(auditErrOTPInvalid) || rejected.Metadata["attempts"] != "1" {
		t.Fatalf("reject event: %+v", rejected)
	}
	for _, ev := range events {
		raw, _ := json.Marshal(ev)
		if strings.Contains(string(raw), code) {
			t.Fatal("audit events must never contain the code")
		}
	}
}

func TestJSONWriterAndSlogSinks(t *testing.T) {
	ev := AuditEvent{Timestamp: time.Unix(0, 0).UTC(), EventType: "login_failure", Email: "a@x.com", Error: "invalid_credentials"}

	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), ev)
	var decoded AuditEvent
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != ev.EventType || decoded.Email != ev.Email {
		t.Fatalf("decoded %+v", decoded)
	}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	NewSlogSink(logger).Emit(context.Background(), ev)
	line := logBuf.String()
	if !strings.Contains(line, `"level":"WARN"`) || !strings.Contains(line, `"event":"login_failure"`) {
		t.Fatalf("slog output: %s", line)
	}
}
