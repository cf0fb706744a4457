package mock

import (
	"sync"
	"time"

	"ai-speech-interaction-service/internal/speech"
)

// DefaultVoices is the voice list of a simulated synthesizer.
var DefaultVoices = []speech.Voice{
	{Name: "Mock Narrator", Lang: "en-US", URI: "mock:narrator", Default: true, Local: true},
	{Name: "Mock Tutor", Lang: "en-GB", URI: "mock:tutor", Local: true},
}

type job struct {
	u *speech.Utterance
	h speech.UtteranceHandler
}

// Synthesizer implements speech.Synthesizer with a FIFO of pending utterances.
type Synthesizer struct {
	mu          sync.Mutex
	voices      []speech.Voice
	spoken      []*speech.Utterance
	pending     []job
	cancelCalls int
	speakErr    error
	draining    bool

	// autoComplete finishes each utterance after this delay; zero is manual.
	autoComplete time.Duration
}

// NewSynthesizer creates a manual mock synthesizer offering voices.
func NewSynthesizer(voices ...speech.Voice) *Synthesizer {
	return &Synthesizer{voices: voices}
}

// NewSimulatedSynthesizer creates a synthesizer that finishes utterances in
// order, each perUtterance after the previous one.
func NewSimulatedSynthesizer(perUtterance time.Duration) *Synthesizer {
	return &Synthesizer{
		voices:       DefaultVoices,
		autoComplete: perUtterance,
	}
}

// Voices returns the configured voice list.
func (s *Synthesizer) Voices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Voice(nil), s.voices...)
}

// SetVoices replaces the voice list.
func (s *Synthesizer) SetVoices(voices ...speech.Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices = voices
}

// SetSpeakError makes subsequent Speak calls fail with err.
func (s *Synthesizer) SetSpeakError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakErr = err
}

// Speak queues u.
func (s *Synthesizer) Speak(u *speech.Utterance, h speech.UtteranceHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spoken = append(s.spoken, u)
	if s.speakErr != nil {
		return s.speakErr
	}
	s.pending = append(s.pending, job{u: u, h: h})
	if s.autoComplete > 0 && !s.draining {
		s.draining = true
		go s.drain()
	}
	return nil
}

// drain finishes queued utterances one after another until the queue is empty.
func (s *Synthesizer) drain() {
	for {
		time.Sleep(s.autoComplete)
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		j := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		j.h.OnEnd()
	}
}

// Cancel empties the queue. The utterance being spoken fails with
// "interrupted", the queued ones with "canceled".
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	s.cancelCalls++
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for i, j := range pending {
		code := speech.CodeCanceled
		if i == 0 {
			code = speech.CodeInterrupted
		}
		j.h.OnError(&speech.SynthesisError{Code: code})
	}
}

// FinishNext completes the oldest pending utterance.
func (s *Synthesizer) FinishNext() bool {
	j, ok := s.pop()
	if ok {
		j.h.OnEnd()
	}
	return ok
}

// FailNext fails the oldest pending utterance with code.
func (s *Synthesizer) FailNext(code string) bool {
	j, ok := s.pop()
	if ok {
		j.h.OnError(&speech.SynthesisError{Code: code})
	}
	return ok
}

// Spoken returns every utterance passed to Speak.
func (s *Synthesizer) Spoken() []*speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*speech.Utterance(nil), s.spoken...)
}

// Pending returns the number of queued utterances.
func (s *Synthesizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CancelCalls returns how many times Cancel was called.
func (s *Synthesizer) CancelCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

func (s *Synthesizer) pop() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return job{}, false
	}
	j := s.pending[0]
	s.pending = s.pending[1:]
	return j, true
}
