// Package openaitts provides a speech.Synthesizer backed by the OpenAI
// text-to-speech API. Utterances are spoken one at a time in the order they
// were queued; the synthesized audio is handed to a speech.AudioOutput.
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/speech"
)

// MaxInputLength is the longest text the API accepts in one request.
const MaxInputLength = 4096

// voiceNames lists the voices offered by the speech endpoint.
var voiceNames = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Config holds OpenAI TTS settings.
type Config struct {
	Model          string
	Voice          string // used when the utterance has no voice
	ResponseFormat string
}

// DefaultConfig returns the default TTS settings.
func DefaultConfig() Config {
	return Config{
		Model:          string(openai.TTSModel1),
		Voice:          "alloy",
		ResponseFormat: string(openai.SpeechResponseFormatMp3),
	}
}

// SpeechClient is the part of *openai.Client used by the synthesizer.
type SpeechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

type job struct {
	u           *speech.Utterance
	h           speech.UtteranceHandler
	cancel      context.CancelFunc
	interrupted bool
}

// Synthesizer implements speech.Synthesizer.
type Synthesizer struct {
	client SpeechClient
	cfg    Config
	out    speech.AudioOutput
	logger zerolog.Logger

	mu      sync.Mutex
	queue   []*job
	current *job
	running bool
}

// New creates a synthesizer writing audio to out. client is usually shared
// between synthesizers.
func New(client SpeechClient, cfg Config, out speech.AudioOutput) *Synthesizer {
	if cfg.Voice == "" {
		cfg.Voice = DefaultConfig().Voice
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = DefaultConfig().ResponseFormat
	}
	return &Synthesizer{
		client: client,
		cfg:    cfg,
		out:    out,
		logger: logging.WithProvider("synthesizer", "openai"),
	}
}

// Voices returns the OpenAI voices with the configured voice as default.
func (s *Synthesizer) Voices() []speech.Voice {
	voices := make([]speech.Voice, 0, len(voiceNames))
	for _, name := range voiceNames {
		voices = append(voices, speech.Voice{
			Name:    name,
			URI:     "openai:" + name,
			Default: name == s.cfg.Voice,
		})
	}
	return voices
}

// Speak queues u behind any utterance already queued.
func (s *Synthesizer) Speak(u *speech.Utterance, h speech.UtteranceHandler) error {
	if len(u.Text) > MaxInputLength {
		return &speech.SynthesisError{
			Code:    speech.CodeTextTooLong,
			Message: fmt.Sprintf("%d characters exceeds %d", len(u.Text), MaxInputLength),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, &job{u: u, h: h})
	if !s.running {
		s.running = true
		go s.run()
	}
	return nil
}

// Cancel drops the queue and interrupts the utterance being synthesized.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	cur := s.current
	if cur != nil {
		cur.interrupted = true
		cur.cancel()
	}
	s.mu.Unlock()

	if cur != nil {
		cur.h.OnError(&speech.SynthesisError{Code: speech.CodeInterrupted})
	}
	for _, j := range queued {
		j.h.OnError(&speech.SynthesisError{Code: speech.CodeCanceled})
	}
}

func (s *Synthesizer) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue = s.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		j.cancel = cancel
		s.current = j
		s.mu.Unlock()

		err := s.synthesize(ctx, j.u)
		cancel()

		s.mu.Lock()
		s.current = nil
		interrupted := j.interrupted
		s.mu.Unlock()

		// Cancel already reported the interruption.
		if interrupted {
			continue
		}
		if err != nil {
			serr := toSynthesisError(err)
			s.logger.Warn().Err(err).Str("code", serr.Code).Msg("Speech synthesis failed")
			j.h.OnError(serr)
			continue
		}
		j.h.OnEnd()
	}
}

func (s *Synthesizer) synthesize(ctx context.Context, u *speech.Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          u.Text,
		Voice:          openai.SpeechVoice(s.voiceFor(u)),
		ResponseFormat: openai.SpeechResponseFormat(s.cfg.ResponseFormat),
		Speed:          clampSpeed(u.Rate),
	}

	resp, err := s.client.CreateSpeech(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("voice", string(req.Voice)).
		Float64("speed", req.Speed).
		Int("bytes", len(data)).
		Msg("Speech synthesized")

	if s.out == nil {
		return nil
	}
	if err := s.out.WriteAudio(speech.AudioClip{
		Format: s.cfg.ResponseFormat,
		Volume: u.Volume,
		Data:   data,
	}); err != nil {
		return &speech.SynthesisError{Code: speech.CodeSynthesisFailed, Message: err.Error()}
	}
	return nil
}

// voiceFor returns the utterance voice when the API offers it.
func (s *Synthesizer) voiceFor(u *speech.Utterance) string {
	if u.Voice != nil {
		for _, name := range voiceNames {
			if name == u.Voice.Name {
				return name
			}
		}
	}
	return s.cfg.Voice
}

// clampSpeed keeps the rate inside the range the API accepts.
func clampSpeed(rate float64) float64 {
	switch {
	case rate <= 0:
		return 1.0
	case rate < 0.25:
		return 0.25
	case rate > 4.0:
		return 4.0
	default:
		return rate
	}
}

// toSynthesisError maps API and transport failures onto synthesis error codes.
func toSynthesisError(err error) *speech.SynthesisError {
	var serr *speech.SynthesisError
	if errors.As(err, &serr) {
		return serr
	}
	if errors.Is(err, context.Canceled) {
		return &speech.SynthesisError{Code: speech.CodeInterrupted, Message: err.Error()}
	}

	statusCode := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		statusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		statusCode = reqErr.HTTPStatusCode
	}

	code := speech.CodeNetwork
	switch {
	case statusCode == http.StatusBadRequest:
		code = speech.CodeInvalidArgument
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = speech.CodeNotAllowed
	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		code = speech.CodeSynthesisUnavailable
	case statusCode != 0:
		code = speech.CodeSynthesisFailed
	}
	return &speech.SynthesisError{Code: code, Message: err.Error()}
}
