// Package speech provides the speech-interaction controller. The controller
// owns one recognition session and one synthesis session, turns provider
// events into state transitions and exposes a start/stop/speak contract
// plus observable state to the presentation layer.
package speech

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/observability/metrics"
)

// ErrListenTimeout is reported when a session exceeds the listen timeout.
var ErrListenTimeout = errors.New("speech recognition timed out")

// Capabilities are the providers detected in the running environment.
// A nil field means the capability is unavailable.
type Capabilities struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithListenTimeout stops a recognition session that is still listening
// after d and reports ErrListenTimeout. Zero disables the timeout, in which
// case a provider that never reports end or error keeps the controller
// listening.
func WithListenTimeout(d time.Duration) Option {
	return func(c *Controller) { c.listenTimeout = d }
}

// Controller mediates between the presentation layer and the recognition and
// synthesis capabilities.
//
// Controller methods are safe for concurrent use. Provider methods are never
// called while the state lock is held, so providers may deliver events
// synchronously from Start, Stop, Speak or Cancel.
type Controller struct {
	recognizer    Recognizer
	synthesizer   Synthesizer
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	listenTimeout time.Duration

	// opMu serializes the imperative operations, mu guards the state.
	opMu sync.Mutex
	mu   sync.Mutex

	state       State
	session     uint64 // generation of the current recognition session
	listenStart time.Time
	timer       *time.Timer
	closed      bool
	subs        map[chan State]struct{}
}

// New creates a controller over the detected capabilities. The recognizer,
// if any, is configured once for single-utterance, final-only recognition.
func New(caps Capabilities, opts ...Option) *Controller {
	c := &Controller{
		recognizer:  caps.Recognizer,
		synthesizer: caps.Synthesizer,
		logger:      logging.WithComponent("speech-controller"),
		metrics:     metrics.DefaultMetrics,
		subs:        make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.recognizer != nil {
		c.recognizer.Configure(RecognitionConfig{
			Continuous:      false,
			InterimResults:  false,
			MaxAlternatives: 1,
		})
	}

	c.logger.Debug().
		Bool("recognition", c.recognizer != nil).
		Bool("synthesis", c.synthesizer != nil).
		Dur("listenTimeout", c.listenTimeout).
		Msg("Speech controller initialized")

	return c
}

// StartListening begins a recognition session. The transcript and error are
// cleared; results are appended to the transcript as they arrive.
func (c *Controller) StartListening() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn().Msg("StartListening ignored: controller closed")
		return
	}
	if c.recognizer == nil {
		c.state.Error = ErrRecognitionUnsupported.Error()
		c.notifyLocked()
		c.mu.Unlock()
		c.metrics.RecordCapabilityUnavailable("recognition")
		c.logger.Warn().Msg("StartListening: recognition capability unavailable")
		return
	}

	restart := c.state.Listening
	if restart {
		c.finishListenLocked()
	}
	c.session++
	session := c.session
	c.state.Generation = session
	c.state.Listening = true
	c.state.Transcript = ""
	c.state.Error = ""
	c.listenStart = time.Now()
	if c.listenTimeout > 0 {
		c.timer = time.AfterFunc(c.listenTimeout, func() { c.listenTimedOut(session) })
	}
	c.notifyLocked()
	c.mu.Unlock()

	if restart {
		// Only one session is owned at a time.
		c.recognizer.Stop()
	}

	c.metrics.RecordListenStart()
	c.recognizer.Configure(RecognitionConfig{
		Language:        Language,
		Continuous:      false,
		InterimResults:  false,
		MaxAlternatives: 1,
	})

	reactions := &recognitionReactions{c: c, session: session}
	if err := c.recognizer.Start(reactions); err != nil {
		c.logger.Error().Err(err).Uint64("session", session).Msg("Recognizer failed to start")
		reactions.OnError(err)
		return
	}

	c.logger.Debug().Uint64("session", session).Bool("restart", restart).Msg("Listening started")
}

// StopListening stops the active recognition session. Listening is false when
// it returns even though the provider may still report end afterwards.
func (c *Controller) StopListening() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed || c.recognizer == nil || !c.state.Listening {
		c.mu.Unlock()
		return
	}
	session := c.session
	c.state.Listening = false
	c.finishListenLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.recognizer.Stop()
	c.metrics.RecordListenStop()
	c.logger.Debug().Uint64("session", session).Msg("Listening stopped")
}

// Speak vocalizes text with the preferred voice. Speaking is true when it
// returns; completion is reported by the synthesizer.
func (c *Controller) Speak(text string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn().Msg("Speak ignored: controller closed")
		return
	}
	if c.synthesizer == nil {
		c.state.Error = ErrSynthesisUnsupported.Error()
		c.notifyLocked()
		c.mu.Unlock()
		c.metrics.RecordCapabilityUnavailable("synthesis")
		c.logger.Warn().Msg("Speak: synthesis capability unavailable")
		return
	}
	c.mu.Unlock()

	u := NewUtterance(text)
	// Voice lists can still be empty while the provider loads them.
	if v, ok := SelectVoice(c.synthesizer.Voices()); ok {
		u.Voice = &v
	}

	c.mu.Lock()
	c.state.Speaking = true
	c.state.Error = ""
	c.notifyLocked()
	c.mu.Unlock()

	c.metrics.RecordUtterance()
	reactions := &utteranceReactions{c: c, started: time.Now()}

	logEvent := c.logger.Debug().Int("textLen", len(text))
	if u.Voice != nil {
		logEvent = logEvent.Str("voice", u.Voice.Name)
	}
	logEvent.Msg("Speaking")

	if err := c.synthesizer.Speak(u, reactions); err != nil {
		c.logger.Error().Err(err).Msg("Synthesizer rejected utterance")
		reactions.OnError(err)
	}
}

// Close tears the controller down: the recognizer is stopped and the
// synthesis queue cancelled, each exactly once. Events delivered afterwards
// are ignored and subscriptions are closed. Close is idempotent.
func (c *Controller) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.state.Listening {
		c.state.Listening = false
		c.finishListenLocked()
	}
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for ch := range subs {
		close(ch)
	}

	if c.recognizer != nil {
		c.recognizer.Stop()
	}
	if c.synthesizer != nil {
		c.synthesizer.Cancel()
	}

	c.logger.Debug().Msg("Speech controller closed")
}

// State returns a snapshot of the observable state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsListening reports whether a recognition session is active.
func (c *Controller) IsListening() bool {
	return c.State().Listening
}

// IsSpeaking reports whether an utterance is being spoken.
func (c *Controller) IsSpeaking() bool {
	return c.State().Speaking
}

// Transcript returns the transcript of the current listening session.
func (c *Controller) Transcript() string {
	return c.State().Transcript
}

// LastError returns the last reported error, or "" if none.
func (c *Controller) LastError() string {
	return c.State().Error
}

// Subscribe returns a channel that receives the current state and then the
// latest state after every change. Intermediate states may be coalesced when
// the receiver is slow. The channel is closed by the returned cancel func or
// by Close.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		ch <- c.state
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	ch <- c.state

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

// notifyLocked hands the current state to every subscriber, replacing a
// snapshot the subscriber has not read yet.
func (c *Controller) notifyLocked() {
	s := c.state
	for ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// finishListenLocked stops the listen timer and records the session length.
func (c *Controller) finishListenLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.listenStart.IsZero() {
		c.metrics.RecordListenEnd(time.Since(c.listenStart).Seconds())
		c.listenStart = time.Time{}
	}
}

func (c *Controller) listenTimedOut(session uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed || c.session != session || !c.state.Listening {
		c.mu.Unlock()
		return
	}
	c.state.Listening = false
	c.state.Error = ErrListenTimeout.Error()
	c.finishListenLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.recognizer.Stop()
	c.metrics.RecordListenTimeout()
	c.logger.Warn().Uint64("session", session).Dur("timeout", c.listenTimeout).Msg("Listening timed out")
}

// recognitionReactions is the handler registered for one recognition
// session. Events from a session superseded by a newer start are dropped.
type recognitionReactions struct {
	c       *Controller
	session uint64
}

func (r *recognitionReactions) currentLocked() bool {
	return !r.c.closed && r.c.session == r.session
}

func (r *recognitionReactions) OnResult(ev ResultEvent) {
	text, ok := ev.Transcript()
	if !ok {
		return
	}

	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if !r.currentLocked() {
		c.logger.Debug().Uint64("session", r.session).Msg("Result from stale session dropped")
		return
	}
	c.state.Transcript = c.state.Transcript + " " + text
	c.notifyLocked()
	c.metrics.RecordResult()
}

func (r *recognitionReactions) OnError(err error) {
	code := errorCode(err)

	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if !r.currentLocked() {
		return
	}
	c.state.Error = code
	if c.state.Listening {
		c.state.Listening = false
		c.finishListenLocked()
	}
	c.notifyLocked()
	c.metrics.RecordRecognitionError(code)
	c.logger.Warn().Err(err).Str("code", code).Uint64("session", r.session).Msg("Recognition error")
}

func (r *recognitionReactions) OnEnd() {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if !r.currentLocked() || !c.state.Listening {
		return
	}
	c.state.Listening = false
	c.finishListenLocked()
	c.notifyLocked()
}

// utteranceReactions is the handler registered for one utterance. Only the
// first of end or error is applied.
type utteranceReactions struct {
	c       *Controller
	started time.Time
	once    sync.Once
}

func (r *utteranceReactions) OnEnd() {
	r.once.Do(func() {
		c := r.c
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.state.Speaking = false
		c.notifyLocked()
		c.metrics.RecordUtteranceEnd(time.Since(r.started).Seconds())
	})
}

func (r *utteranceReactions) OnError(err error) {
	r.once.Do(func() {
		code := errorCode(err)

		c := r.c
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.state.Error = "speech synthesis error: " + code
		c.state.Speaking = false
		c.notifyLocked()
		c.metrics.RecordSynthesisError(code)
		c.logger.Warn().Err(err).Str("code", code).Msg("Synthesis error")
	})
}
