package speech

import (
	"errors"
	"strings"
)

// Utterance defaults.
const (
	DefaultRate   = 0.9
	DefaultPitch  = 1.1
	DefaultVolume = 1.0
)

// Synthesis error codes reported by synthesis providers.
const (
	CodeCanceled             = "canceled"
	CodeInterrupted          = "interrupted"
	CodeAudioBusy            = "audio-busy"
	CodeSynthesisUnavailable = "synthesis-unavailable"
	CodeSynthesisFailed      = "synthesis-failed"
	CodeVoiceUnavailable     = "voice-unavailable"
	CodeInvalidArgument      = "invalid-argument"
	CodeTextTooLong          = "text-too-long"
)

// ErrSynthesisUnsupported is reported when no synthesis capability was detected.
var ErrSynthesisUnsupported = errors.New("speech synthesis is not supported in this environment")

// Voice describes a voice offered by a synthesizer.
type Voice struct {
	Name    string
	Lang    string
	URI     string
	Default bool
	Local   bool
}

// Utterance is one request to vocalize text.
type Utterance struct {
	Text   string
	Lang   string
	Rate   float64
	Pitch  float64
	Volume float64
	Voice  *Voice // nil: the provider picks its default
}

// NewUtterance returns an utterance for text with the standard parameters.
func NewUtterance(text string) *Utterance {
	return &Utterance{
		Text:   text,
		Lang:   Language,
		Rate:   DefaultRate,
		Pitch:  DefaultPitch,
		Volume: DefaultVolume,
	}
}

// SynthesisError is a provider-reported synthesis failure.
type SynthesisError struct {
	Code    string
	Message string
}

func (e *SynthesisError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// UtteranceHandler receives the completion of a single utterance.
type UtteranceHandler interface {
	OnEnd()
	OnError(err error)
}

// AudioClip is synthesized audio ready for playback. Volume is applied by
// the player.
type AudioClip struct {
	Format string
	Volume float64
	Data   []byte
}

// AudioOutput receives synthesized audio from providers that do not play it
// themselves.
type AudioOutput interface {
	WriteAudio(clip AudioClip) error
}

// Synthesizer is the synthesis capability consumed by the Controller.
type Synthesizer interface {
	// Voices lists the voices available right now. The list may be empty
	// while the provider is still loading.
	Voices() []Voice

	// Speak queues u. It returns immediately; completion is reported to h.
	Speak(u *Utterance, h UtteranceHandler) error

	// Cancel drops every queued utterance and interrupts the current one.
	Cancel()
}

// SelectVoice picks the preferred voice: the first whose name contains
// "Google", else "Microsoft", else the default voice.
func SelectVoice(voices []Voice) (Voice, bool) {
	for _, match := range []func(Voice) bool{
		func(v Voice) bool { return strings.Contains(v.Name, "Google") },
		func(v Voice) bool { return strings.Contains(v.Name, "Microsoft") },
		func(v Voice) bool { return v.Default },
	} {
		for _, v := range voices {
			if match(v) {
				return v, true
			}
		}
	}
	return Voice{}, false
}
