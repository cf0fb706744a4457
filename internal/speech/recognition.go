package speech

import "errors"

// Language is the language tag every recognition session and utterance uses.
const Language = "en-US"

// Recognition error codes reported by recognition providers.
const (
	CodeNoSpeech             = "no-speech"
	CodeAborted              = "aborted"
	CodeAudioCapture         = "audio-capture"
	CodeNetwork              = "network"
	CodeNotAllowed           = "not-allowed"
	CodeServiceNotAllowed    = "service-not-allowed"
	CodeLanguageNotSupported = "language-not-supported"
)

// ErrRecognitionUnsupported is reported when no recognition capability was detected.
var ErrRecognitionUnsupported = errors.New("speech recognition is not supported in this environment")

// RecognitionConfig holds the settings a recognizer applies to its next session.
type RecognitionConfig struct {
	Language        string
	Continuous      bool // false: a session ends after one utterance
	InterimResults  bool // false: only final results are delivered
	MaxAlternatives int
}

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one recognized segment with its ranked alternatives.
type Result struct {
	Final        bool
	Alternatives []Alternative
}

// ResultEvent is delivered to OnResult each time the provider recognizes speech.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
}

// Transcript returns the text of the first alternative of the first result.
func (e ResultEvent) Transcript() (string, bool) {
	if len(e.Results) == 0 || len(e.Results[0].Alternatives) == 0 {
		return "", false
	}
	return e.Results[0].Alternatives[0].Transcript, true
}

// RecognitionError is a provider-reported recognition failure.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// RecognitionHandler receives the events of one recognition session.
type RecognitionHandler interface {
	// OnResult is called for every recognized result, in delivery order.
	OnResult(ev ResultEvent)

	// OnError is called when the session fails. OnEnd usually follows.
	OnError(err error)

	// OnEnd is called when the session completes, with or without error.
	OnEnd()
}

// Recognizer is the recognition capability consumed by the Controller.
// Start returns immediately; all outcomes arrive through the handler.
type Recognizer interface {
	// Configure sets the options used by the next Start.
	Configure(cfg RecognitionConfig)

	// Start begins capturing and delivers events to h. A handler passed
	// to a later Start replaces h.
	Start(h RecognitionHandler) error

	// Stop requests the end of the active session. Results already in
	// flight may still be delivered, followed by OnEnd.
	Stop()
}

// AudioSink is implemented by recognizers that are fed captured audio by
// the transport instead of reading a device themselves.
type AudioSink interface {
	Feed(audio []byte) error
}

// errorCode extracts the platform code from a recognition error.
func errorCode(err error) string {
	var rerr *RecognitionError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	var serr *SynthesisError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return err.Error()
}
