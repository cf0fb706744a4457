package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"ai-speech-interaction-service/internal/models"
	"ai-speech-interaction-service/internal/observability/metrics"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	closed   bool
	closeErr error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeWriter, *fakeWriter, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	transcript, reply := &fakeWriter{}, &fakeWriter{}
	p := New(&Config{
		TopicTranscript: "test.transcript",
		TopicReply:      "test.reply",
		Principal:       "test-svc",
		Metrics:         m,
	})
	p.writerTranscript = transcript
	p.writerReply = reply
	p.enabled = true
	return p, transcript, reply, m
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscript != nil || p.writerReply != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "voice.transcript",
		TopicReply:      "voice.reply",
		Metrics:         metrics.NewMetrics(prometheus.NewRegistry()),
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	w, ok := p.writerTranscript.(*kafka.Writer)
	if !ok || w.Topic != "voice.transcript" {
		t.Errorf("transcript writer = %#v", p.writerTranscript)
	}
	if w, ok := p.writerReply.(*kafka.Writer); !ok || w.Topic != "voice.reply" {
		t.Errorf("reply writer = %#v", p.writerReply)
	}
}

func TestPublisher_Disabled_NoError(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTranscript: "t", TopicReply: "r"})

	if err := p.PublishTranscript(context.Background(), "k", map[string]string{"text": "x"}); err != nil {
		t.Errorf("PublishTranscript: %v", err)
	}
	if err := p.PublishReply(context.Background(), "k", map[string]string{"text": "x"}); err != nil {
		t.Errorf("PublishReply: %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishTranscript(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
	if err := p.PublishReply(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_PublishTranscript(t *testing.T) {
	p, transcript, reply, m := newTestPublisher(t)

	event := &models.TranscriptUpdated{
		EventType:  models.EventTypeTranscriptUpdated,
		SessionID:  "s-1",
		Timestamp:  42,
		Transcript: " hello world",
	}
	if err := p.PublishTranscript(context.Background(), "s-1", event); err != nil {
		t.Fatalf("PublishTranscript: %v", err)
	}

	if len(transcript.msgs) != 1 || len(reply.msgs) != 0 {
		t.Fatalf("messages: transcript=%d reply=%d", len(transcript.msgs), len(reply.msgs))
	}
	msg := transcript.msgs[0]
	if string(msg.Key) != "s-1" {
		t.Errorf("key = %q, want s-1", msg.Key)
	}
	var got models.TranscriptUpdated
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Transcript != " hello world" {
		t.Errorf("payload transcript = %q", got.Transcript)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != "transcript" || headers["principal"] != "test-svc" {
		t.Errorf("headers = %v", headers)
	}

	if n := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.transcript", "transcript")); n != 1 {
		t.Errorf("publish total = %v, want 1", n)
	}
}

func TestPublisher_PublishReply_WriteError(t *testing.T) {
	p, _, reply, m := newTestPublisher(t)
	reply.err = errors.New("broker down")

	err := p.PublishReply(context.Background(), "s-1", &models.ReplyRequested{Text: "hi"})
	if err == nil {
		t.Fatal("expected write error")
	}
	if n := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("test.reply", "reply")); n != 1 {
		t.Errorf("publish errors = %v, want 1", n)
	}
}

func TestPublisher_Close(t *testing.T) {
	p, transcript, reply, _ := newTestPublisher(t)
	reply.closeErr = errors.New("close failed")

	if err := p.Close(); err == nil {
		t.Error("expected close error to be returned")
	}
	if !transcript.closed || !reply.closed {
		t.Error("expected both writers closed")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	if err := New(&Config{Enabled: false}).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
