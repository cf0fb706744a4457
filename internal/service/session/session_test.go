package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ai-speech-interaction-service/internal/models"
	"ai-speech-interaction-service/internal/observability/metrics"
	"ai-speech-interaction-service/internal/schema"
	"ai-speech-interaction-service/internal/speech"
	"ai-speech-interaction-service/internal/speech/mock"
)

const testTemplate = "You said: %s. I will now explain React to you."

// feedRecorder is a manual mock recognizer that records fed audio.
type feedRecorder struct {
	*mock.Recognizer
	mu     sync.Mutex
	frames int
}

func (f *feedRecorder) Feed(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return nil
}

func (f *feedRecorder) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

type recordingPublisher struct {
	mu          sync.Mutex
	transcripts []*models.TranscriptUpdated
	replies     []*models.ReplyRequested
}

func (p *recordingPublisher) PublishTranscript(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, event.(*models.TranscriptUpdated))
	return nil
}

func (p *recordingPublisher) PublishReply(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, event.(*models.ReplyRequested))
	return nil
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transcripts), len(p.replies)
}

type fixture struct {
	session *Session
	rec     *feedRecorder
	syn     *mock.Synthesizer
	pub     *recordingPublisher
	metrics *metrics.Metrics
	states  chan speech.State
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return newSlowFixture(t, cfg, 0)
}

// newSlowFixture runs the session with a client that takes delay to accept
// each state, so the session only sees coalesced snapshots.
func newSlowFixture(t *testing.T, cfg Config, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		rec:     &feedRecorder{Recognizer: mock.NewRecognizer()},
		syn:     mock.NewSynthesizer(mock.DefaultVoices...),
		pub:     &recordingPublisher{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		states:  make(chan speech.State, 64),
	}
	f.session = New(
		speech.Capabilities{Recognizer: f.rec, Synthesizer: f.syn},
		cfg,
		f.pub,
		WithMetrics(f.metrics),
		WithValidator(schema.New()),
		WithID("session-1"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.session.Run(ctx, func(st speech.State) error {
			time.Sleep(delay)
			select {
			case f.states <- st:
			default:
			}
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		f.session.Close()
		<-done
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func spokenTexts(s *mock.Synthesizer) []string {
	var out []string
	for _, u := range s.Spoken() {
		out = append(out, u.Text)
	}
	return out
}

func TestSession_RepliesToEachNewTranscript(t *testing.T) {
	f := newFixture(t, Config{ReplyEnabled: true, ReplyTemplate: testTemplate})

	if err := f.session.Handle(Command{Type: CommandStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.rec.EmitResult("hello")
	waitFor(t, "first reply", func() bool { return len(f.syn.Spoken()) == 1 })

	f.rec.EmitResult("world")
	waitFor(t, "second reply", func() bool { return len(f.syn.Spoken()) == 2 })

	got := spokenTexts(f.syn)
	want := []string{
		"You said: hello. I will now explain React to you.",
		"You said: hello world. I will now explain React to you.",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}

	// End and speech completion leave the transcript unchanged.
	f.rec.EmitEnd()
	f.syn.FinishNext()
	waitFor(t, "listening false", func() bool { return !f.session.Controller().IsListening() })
	time.Sleep(20 * time.Millisecond)
	if n := len(f.syn.Spoken()); n != 2 {
		t.Errorf("spoken = %d after end, want 2", n)
	}

	transcripts, replies := f.pub.counts()
	if transcripts != 2 || replies != 2 {
		t.Errorf("published transcripts=%d replies=%d, want 2 and 2", transcripts, replies)
	}
}

func TestSession_SameTextInNewSessionRepliesAgain(t *testing.T) {
	f := newSlowFixture(t, Config{ReplyEnabled: true, ReplyTemplate: testTemplate}, 50*time.Millisecond)

	_ = f.session.Handle(Command{Type: CommandStart})
	f.rec.EmitResult("yes")
	f.rec.EmitEnd()
	waitFor(t, "first reply", func() bool { return len(f.syn.Spoken()) == 1 })

	// The cleared transcript of the new session is coalesced away.
	_ = f.session.Handle(Command{Type: CommandStart})
	f.rec.EmitResult("yes")
	waitFor(t, "second reply", func() bool { return len(f.syn.Spoken()) == 2 })

	transcripts, replies := f.pub.counts()
	if transcripts != 2 || replies != 2 {
		t.Errorf("published transcripts=%d replies=%d, want 2 and 2", transcripts, replies)
	}
}

func TestSession_ReplyDisabled(t *testing.T) {
	f := newFixture(t, Config{ReplyEnabled: false, ReplyTemplate: testTemplate})

	_ = f.session.Handle(Command{Type: CommandStart})
	f.rec.EmitResult("hello")
	waitFor(t, "transcript published", func() bool {
		n, _ := f.pub.counts()
		return n == 1
	})
	if n := len(f.syn.Spoken()); n != 0 {
		t.Errorf("spoken = %d, want 0", n)
	}
}

func TestSession_Commands(t *testing.T) {
	f := newFixture(t, Config{})
	ctrl := f.session.Controller()

	if err := f.session.Handle(Command{Type: CommandToggle}); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !ctrl.IsListening() {
		t.Fatal("toggle should start listening")
	}
	if err := f.session.Handle(Command{Type: CommandToggle}); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ctrl.IsListening() {
		t.Fatal("toggle should stop listening")
	}
	if f.rec.StartCalls() != 1 || f.rec.StopCalls() != 1 {
		t.Errorf("start=%d stop=%d, want 1 and 1", f.rec.StartCalls(), f.rec.StopCalls())
	}

	_ = f.session.Handle(Command{Type: CommandStart})
	_ = f.session.Handle(Command{Type: CommandStop})
	if ctrl.IsListening() {
		t.Error("stop should stop listening")
	}

	if err := f.session.Handle(Command{Type: CommandSpeak}); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if err := f.session.Handle(Command{Type: CommandSpeak, Text: "custom"}); err != nil {
		t.Fatalf("speak: %v", err)
	}
	got := spokenTexts(f.syn)
	if len(got) != 2 || got[0] != DefaultGreeting || got[1] != "custom" {
		t.Errorf("spoken = %v", got)
	}
	if !ctrl.IsSpeaking() {
		t.Error("expected speaking after speak command")
	}

	if err := f.session.Handle(Command{Type: "dance"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestSession_FeedOnlyWhileListening(t *testing.T) {
	f := newFixture(t, Config{})

	if err := f.session.Feed(make([]byte, 32)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n := f.rec.Frames(); n != 0 {
		t.Errorf("frames fed while idle = %d, want 0", n)
	}

	_ = f.session.Handle(Command{Type: CommandStart})
	_ = f.session.Feed(make([]byte, 32))
	_ = f.session.Feed(make([]byte, 32))
	if n := f.rec.Frames(); n != 2 {
		t.Errorf("frames fed = %d, want 2", n)
	}
	if got := testutil.ToFloat64(f.metrics.AudioBytesReceived); got != 96 {
		t.Errorf("audio bytes metric = %v, want 96", got)
	}
}

func TestSession_AudioLimitStopsListening(t *testing.T) {
	f := newFixture(t, Config{MaxAudioBytes: 10})

	_ = f.session.Handle(Command{Type: CommandStart})
	if err := f.session.Feed(make([]byte, 6)); err != nil {
		t.Fatalf("first feed: %v", err)
	}
	if err := f.session.Feed(make([]byte, 6)); !errors.Is(err, ErrAudioLimit) {
		t.Fatalf("second feed error = %v, want ErrAudioLimit", err)
	}
	if f.session.Controller().IsListening() {
		t.Error("expected listening stopped")
	}
	if f.rec.StopCalls() != 1 {
		t.Errorf("stop calls = %d, want 1", f.rec.StopCalls())
	}
}

func TestSession_AudioLimitIsPerListeningSession(t *testing.T) {
	f := newSlowFixture(t, Config{MaxAudioBytes: 10}, 50*time.Millisecond)

	_ = f.session.Handle(Command{Type: CommandStart})
	if err := f.session.Feed(make([]byte, 8)); err != nil {
		t.Fatalf("feed in first session: %v", err)
	}
	_ = f.session.Handle(Command{Type: CommandStop})
	_ = f.session.Handle(Command{Type: CommandStart})

	if err := f.session.Feed(make([]byte, 8)); err != nil {
		t.Fatalf("feed in second session: %v", err)
	}
	if !f.session.Controller().IsListening() {
		t.Fatal("second session should still be listening")
	}
	if err := f.session.Feed(make([]byte, 8)); !errors.Is(err, ErrAudioLimit) {
		t.Errorf("feed over limit error = %v, want ErrAudioLimit", err)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})

	_ = f.session.Handle(Command{Type: CommandStart})
	_ = f.session.Handle(Command{Type: CommandSpeak, Text: "hi"})

	f.session.Close()
	f.session.Close()

	if f.rec.StopCalls() != 1 {
		t.Errorf("recognizer stop calls = %d, want 1", f.rec.StopCalls())
	}
	if f.syn.CancelCalls() != 1 {
		t.Errorf("synthesizer cancel calls = %d, want 1", f.syn.CancelCalls())
	}
	if err := f.session.Handle(Command{Type: CommandStart}); !errors.Is(err, ErrClosed) {
		t.Errorf("Handle after close = %v, want ErrClosed", err)
	}
	if err := f.session.Feed([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed after close = %v, want ErrClosed", err)
	}
	if got := testutil.ToFloat64(f.metrics.SessionsActive); got != 0 {
		t.Errorf("active sessions = %v, want 0", got)
	}
}

func TestSession_RunStopsOnSinkError(t *testing.T) {
	s := New(speech.Capabilities{}, Config{}, nil, WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))
	defer s.Close()

	sinkErr := errors.New("client gone")
	err := s.Run(context.Background(), func(speech.State) error { return sinkErr })
	if !errors.Is(err, sinkErr) {
		t.Errorf("Run error = %v, want %v", err, sinkErr)
	}
}

func TestSession_UnavailableCapabilitiesReportErrors(t *testing.T) {
	s := New(speech.Capabilities{}, Config{}, nil, WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))
	defer s.Close()

	_ = s.Handle(Command{Type: CommandStart})
	if got := s.Controller().LastError(); got != speech.ErrRecognitionUnsupported.Error() {
		t.Errorf("error = %q", got)
	}
	_ = s.Handle(Command{Type: CommandSpeak, Text: "hi"})
	if got := s.Controller().LastError(); got != speech.ErrSynthesisUnsupported.Error() {
		t.Errorf("error = %q", got)
	}
}

func TestSession_NoReplyEventWithoutSynthesis(t *testing.T) {
	rec := mock.NewRecognizer()
	pub := &recordingPublisher{}
	s := New(
		speech.Capabilities{Recognizer: rec},
		Config{ReplyEnabled: true, ReplyTemplate: testTemplate},
		pub,
		WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())),
	)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, func(speech.State) error { return nil })
	}()

	if err := s.Handle(Command{Type: CommandSpeak, Text: "hi"}); err != nil {
		t.Fatalf("speak: %v", err)
	}
	_ = s.Handle(Command{Type: CommandStart})
	rec.EmitResult("hello")
	waitFor(t, "transcript published", func() bool {
		n, _ := pub.counts()
		return n == 1
	})
	waitFor(t, "reply attempted", func() bool {
		return s.Controller().LastError() == speech.ErrSynthesisUnsupported.Error()
	})
	cancel()
	<-done

	if _, replies := pub.counts(); replies != 0 {
		t.Errorf("published replies = %d, want 0", replies)
	}
}

func TestReplyText(t *testing.T) {
	s := &Session{cfg: Config{ReplyTemplate: "Heard %s!"}}
	if got := s.replyText("hi"); got != "Heard hi!" {
		t.Errorf("replyText = %q", got)
	}
	s.cfg.ReplyTemplate = "Fixed reply"
	if got := s.replyText("hi"); got != "Fixed reply" {
		t.Errorf("replyText = %q", got)
	}
}
