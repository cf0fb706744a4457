// Package mock provides scripted speech providers for testing and local
// development without cloud credentials.
//
// Created with NewRecognizer / NewSynthesizer the providers are manual: events
// are emitted only when a test calls the Emit / Finish / Fail helpers. The
// simulated variants behave like a real platform: a recognition session
// yields exactly one final result followed by end once enough audio was
// fed, and utterances finish after a fixed delay.
package mock

import (
	"sync"
	"time"

	"ai-speech-interaction-service/internal/speech"
)

// SimulatedUtterance is a canned recognition result.
type SimulatedUtterance struct {
	Transcript string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Transcript: "what is a react component", Confidence: 0.94},
	{Transcript: "yes please go ahead", Confidence: 0.97},
	{Transcript: "can you explain hooks", Confidence: 0.91},
	{Transcript: "how does state work", Confidence: 0.89},
	{Transcript: "thank you very much", Confidence: 0.98},
}

// utteranceCounter tracks which utterance to use next (cycles through defaults)
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

func nextUtterance() SimulatedUtterance {
	counterMu.Lock()
	defer counterMu.Unlock()
	u := DefaultUtterances[utteranceCounter%len(DefaultUtterances)]
	utteranceCounter++
	return u
}

// Recognizer implements speech.Recognizer and speech.AudioSink.
type Recognizer struct {
	mu         sync.Mutex
	cfg        speech.RecognitionConfig
	configures int
	handlers   []speech.RecognitionHandler
	active     bool
	startCalls int
	stopCalls  int
	startErr   error

	// Simulation state, unused in manual mode.
	simulate           bool
	framesPerUtterance int
	delay              time.Duration
	utterance          SimulatedUtterance
	frames             int
	resultSent         bool
}

// NewRecognizer creates a manual mock recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// NewSimulatedRecognizer creates a recognizer that emits one canned result
// and end after framesPerUtterance audio frames were fed, delayed by delay.
func NewSimulatedRecognizer(framesPerUtterance int, delay time.Duration) *Recognizer {
	if framesPerUtterance <= 0 {
		framesPerUtterance = 1
	}
	return &Recognizer{
		simulate:           true,
		framesPerUtterance: framesPerUtterance,
		delay:              delay,
	}
}

// Configure records the configuration for the next session.
func (r *Recognizer) Configure(cfg speech.RecognitionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.configures++
}

// Start begins a mock session delivering events to h.
func (r *Recognizer) Start(h speech.RecognitionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startCalls++
	if r.startErr != nil {
		return r.startErr
	}
	r.handlers = append(r.handlers, h)
	r.active = true
	r.frames = 0
	r.resultSent = false
	if r.simulate {
		r.utterance = nextUtterance()
	}
	return nil
}

// Stop ends the mock session. A simulated session that received audio but
// has not produced its result yet delivers it before end.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	r.stopCalls++
	if !r.simulate || !r.active {
		r.active = false
		r.mu.Unlock()
		return
	}
	r.active = false
	h := r.currentLocked()
	sendResult := !r.resultSent && r.frames > 0
	r.resultSent = true
	utt := r.utterance
	delay := r.delay
	r.mu.Unlock()

	go func() {
		time.Sleep(delay)
		if sendResult {
			h.OnResult(resultEvent(utt.Transcript, utt.Confidence))
		}
		h.OnEnd()
	}()
}

// Feed simulates receiving captured audio.
func (r *Recognizer) Feed(audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || !r.simulate {
		return nil
	}
	r.frames++
	if r.resultSent || r.frames < r.framesPerUtterance {
		return nil
	}

	// Enough audio: simulate end of utterance.
	r.resultSent = true
	r.active = false
	h := r.currentLocked()
	utt := r.utterance
	delay := r.delay
	go func() {
		time.Sleep(delay)
		h.OnResult(resultEvent(utt.Transcript, utt.Confidence))
		h.OnEnd()
	}()
	return nil
}

// SetStartError makes subsequent Start calls fail with err.
func (r *Recognizer) SetStartError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

// EmitResult delivers a final result with a single alternative.
func (r *Recognizer) EmitResult(text string) {
	r.EmitResultEvent(resultEvent(text, 0.9))
}

// EmitResultEvent delivers ev to the current handler.
func (r *Recognizer) EmitResultEvent(ev speech.ResultEvent) {
	if h := r.current(); h != nil {
		h.OnResult(ev)
	}
}

// EmitError delivers a recognition error with the given code.
func (r *Recognizer) EmitError(code string) {
	if h := r.current(); h != nil {
		h.OnError(&speech.RecognitionError{Code: code})
	}
}

// EmitEnd delivers end and marks the session inactive.
func (r *Recognizer) EmitEnd() {
	r.mu.Lock()
	r.active = false
	h := r.currentLocked()
	r.mu.Unlock()
	if h != nil {
		h.OnEnd()
	}
}

// Handler returns the handler registered by the i-th Start call.
func (r *Recognizer) Handler(i int) speech.RecognitionHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.handlers) {
		return nil
	}
	return r.handlers[i]
}

// Config returns the last configuration applied.
func (r *Recognizer) Config() speech.RecognitionConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// StartCalls returns how many times Start was called.
func (r *Recognizer) StartCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls
}

// StopCalls returns how many times Stop was called.
func (r *Recognizer) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// Active reports whether a session is running.
func (r *Recognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recognizer) current() speech.RecognitionHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *Recognizer) currentLocked() speech.RecognitionHandler {
	if len(r.handlers) == 0 {
		return nil
	}
	return r.handlers[len(r.handlers)-1]
}

func resultEvent(text string, confidence float64) speech.ResultEvent {
	return speech.ResultEvent{
		Results: []speech.Result{{
			Final:        true,
			Alternatives: []speech.Alternative{{Transcript: text, Confidence: confidence}},
		}},
	}
}
