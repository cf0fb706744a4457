// Package session binds a speech controller to one client connection. It
// forwards state to the client, feeds captured audio to the recognizer,
// publishes transcript events and speaks a reply to every new transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-speech-interaction-service/internal/models"
	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/observability/metrics"
	"ai-speech-interaction-service/internal/speech"
)

// Command types accepted from the client.
const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandToggle = "toggle"
	CommandSpeak  = "speak"
)

// DefaultGreeting is spoken for a speak command without text.
const DefaultGreeting = "Hello, this is your AI tutor."

var (
	// ErrUnknownCommand is returned by Handle for unsupported command types.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
	// ErrAudioLimit is returned by Feed when a listening session received
	// more audio than allowed. Listening is stopped.
	ErrAudioLimit = errors.New("listening session audio limit exceeded")
)

// Command is a client request.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config controls the per-session policy.
type Config struct {
	Principal     string
	ReplyEnabled  bool
	ReplyTemplate string // fmt template with one %s for the transcript
	MaxAudioBytes int64  // per listening session, 0 disables
	ListenTimeout time.Duration
}

// Publisher receives session events. *events.Publisher implements it.
type Publisher interface {
	PublishTranscript(ctx context.Context, key string, event any) error
	PublishReply(ctx context.Context, key string, event any) error
}

// Validator checks events before they are published. *schema.Validator
// implements it.
type Validator interface {
	Validate(event any) error
}

// StateSink receives state snapshots for the client.
type StateSink func(speech.State) error

// Option configures a Session.
type Option func(*Session)

// WithMetrics overrides the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithValidator validates events before publishing.
func WithValidator(v Validator) Option {
	return func(s *Session) { s.validator = v }
}

// WithID sets the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one voice interaction.
type Session struct {
	id        string
	cfg       Config
	ctrl      *speech.Controller
	sink      speech.AudioSink // nil when the recognizer takes no audio
	canSpeak  bool
	publisher Publisher
	validator Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu              sync.Mutex
	lastGeneration  uint64
	lastTranscript  string
	audioGeneration uint64
	audioBytes      int64
	closed          bool
	closeOnce       sync.Once
}

// New creates a session over caps. The session owns the controller and
// releases it on Close.
func New(caps speech.Capabilities, cfg Config, publisher Publisher, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithSession(s.id)

	if sink, ok := caps.Recognizer.(speech.AudioSink); ok {
		s.sink = sink
	}
	s.canSpeak = caps.Synthesizer != nil
	s.ctrl = speech.New(caps,
		speech.WithLogger(s.logger.With().Str("component", "speech-controller").Logger()),
		speech.WithMetrics(s.metrics),
		speech.WithListenTimeout(cfg.ListenTimeout),
	)

	s.metrics.RecordSessionOpen()
	s.logger.Info().
		Bool("recognition", caps.Recognizer != nil).
		Bool("synthesis", caps.Synthesizer != nil).
		Msg("Voice session opened")
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Controller returns the session's speech controller.
func (s *Session) Controller() *speech.Controller {
	return s.ctrl
}

// Run forwards every state change to out and applies the reply policy until
// ctx is done, out fails, or the session is closed.
func (s *Session) Run(ctx context.Context, out StateSink) error {
	states, cancel := s.ctrl.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if err := out(st); err != nil {
				return fmt.Errorf("send state: %w", err)
			}
			s.observe(st)
		}
	}
}

// Handle executes a client command.
func (s *Session) Handle(cmd Command) error {
	if s.isClosed() {
		return ErrClosed
	}

	switch cmd.Type {
	case CommandStart:
		s.ctrl.StartListening()
	case CommandStop:
		s.ctrl.StopListening()
	case CommandToggle:
		if s.ctrl.IsListening() {
			s.ctrl.StopListening()
		} else {
			s.ctrl.StartListening()
		}
	case CommandSpeak:
		text := cmd.Text
		if strings.TrimSpace(text) == "" {
			text = DefaultGreeting
		}
		s.ctrl.Speak(text)
		if s.canSpeak {
			s.publishReply(text, "")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}

	s.logger.Debug().Str("command", cmd.Type).Msg("Command handled")
	return nil
}

// Feed passes captured audio to the recognizer. Audio that arrives while
// not listening is dropped.
func (s *Session) Feed(audio []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.metrics.RecordAudioReceived(len(audio))
	if s.sink == nil {
		return nil
	}
	st := s.ctrl.State()
	if !st.Listening {
		return nil
	}

	s.mu.Lock()
	if st.Generation != s.audioGeneration {
		s.audioGeneration = st.Generation
		s.audioBytes = 0
	}
	s.audioBytes += int64(len(audio))
	total := s.audioBytes
	s.mu.Unlock()

	if s.cfg.MaxAudioBytes > 0 && total > s.cfg.MaxAudioBytes {
		s.logger.Warn().
			Int64("audioBytes", total).
			Int64("maxAudioBytes", s.cfg.MaxAudioBytes).
			Msg("Audio limit exceeded, stopping listening")
		s.ctrl.StopListening()
		return ErrAudioLimit
	}

	if err := s.sink.Feed(audio); err != nil {
		// A session that just ended may still receive buffered frames.
		s.logger.Debug().Err(err).Msg("Recognizer rejected audio")
	}
	return nil
}

// Close releases the controller. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.ctrl.Close()
		s.metrics.RecordSessionClose()
		s.logger.Info().Msg("Voice session closed")
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// observe applies the session policy to a state snapshot. Snapshots may be
// coalesced, so a transcript counts as new when either its recognition
// session or its text differs from the last one seen.
func (s *Session) observe(st speech.State) {
	s.mu.Lock()
	changed := st.Generation != s.lastGeneration || st.Transcript != s.lastTranscript
	s.lastGeneration = st.Generation
	s.lastTranscript = st.Transcript
	closed := s.closed
	s.mu.Unlock()

	transcript := strings.TrimSpace(st.Transcript)
	if !changed || transcript == "" || closed {
		return
	}

	s.publishTranscript(st.Transcript)

	if !s.cfg.ReplyEnabled {
		return
	}
	reply := s.replyText(transcript)
	s.ctrl.Speak(reply)
	if s.canSpeak {
		s.publishReply(reply, transcript)
	}
}

func (s *Session) replyText(transcript string) string {
	if !strings.Contains(s.cfg.ReplyTemplate, "%s") {
		return s.cfg.ReplyTemplate
	}
	return fmt.Sprintf(s.cfg.ReplyTemplate, transcript)
}

func (s *Session) publishTranscript(transcript string) {
	if s.publisher == nil {
		return
	}
	ev := &models.TranscriptUpdated{
		EventType:  models.EventTypeTranscriptUpdated,
		SessionID:  s.id,
		Principal:  s.cfg.Principal,
		Timestamp:  time.Now().UnixMilli(),
		Transcript: transcript,
	}
	s.publish(ev, s.publisher.PublishTranscript)
}

func (s *Session) publishReply(text, transcript string) {
	if s.publisher == nil {
		return
	}
	ev := &models.ReplyRequested{
		EventType:  models.EventTypeReplyRequested,
		SessionID:  s.id,
		Principal:  s.cfg.Principal,
		Timestamp:  time.Now().UnixMilli(),
		Text:       text,
		Transcript: transcript,
	}
	s.publish(ev, s.publisher.PublishReply)
}

func (s *Session) publish(ev any, fn func(ctx context.Context, key string, event any) error) {
	if s.validator != nil {
		if err := s.validator.Validate(ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping invalid event")
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx, s.id, ev); err != nil {
		s.logger.Error().Err(err).Msg("Failed to publish event")
	}
}
