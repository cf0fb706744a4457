// Package provider detects which speech capabilities the service can offer
// and builds them for each voice session.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	speechapi "cloud.google.com/go/speech/apiv1"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"ai-speech-interaction-service/internal/config"
	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/speech"
	"ai-speech-interaction-service/internal/speech/google"
	"ai-speech-interaction-service/internal/speech/mock"
	"ai-speech-interaction-service/internal/speech/openaitts"
)

// Simulated provider pacing.
const (
	simulatedFramesPerUtterance = 12
	simulatedResultDelay        = 300 * time.Millisecond
	simulatedUtteranceDuration  = 1500 * time.Millisecond
)

// ErrMissingAPIKey is returned when the openai synthesis provider is selected
// without OPENAI_API_KEY.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required for the openai synthesis provider")

// Factory builds per-session capabilities from shared provider clients.
type Factory struct {
	recognition config.RecognitionConfig
	synthesis   config.SynthesisConfig
	logger      zerolog.Logger

	speechClient *speechapi.Client
	ttsClient    openaitts.SpeechClient
}

// New validates the provider selection and creates the shared clients.
func New(ctx context.Context, cfg *config.Config) (*Factory, error) {
	f := &Factory{
		recognition: cfg.Recognition,
		synthesis:   cfg.Synthesis,
		logger:      logging.WithComponent("provider"),
	}

	switch cfg.Recognition.Provider {
	case config.ProviderMock, config.ProviderNone:
	case config.ProviderGoogle:
		client, err := google.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create google speech client: %w", err)
		}
		f.speechClient = client
	default:
		return nil, fmt.Errorf("unknown recognition provider %q", cfg.Recognition.Provider)
	}

	switch cfg.Synthesis.Provider {
	case config.ProviderMock, config.ProviderNone:
	case config.ProviderOpenAI:
		if cfg.Synthesis.OpenAIAPIKey == "" {
			f.Close()
			return nil, ErrMissingAPIKey
		}
		f.ttsClient = openai.NewClient(cfg.Synthesis.OpenAIAPIKey)
	default:
		f.Close()
		return nil, fmt.Errorf("unknown synthesis provider %q", cfg.Synthesis.Provider)
	}

	f.logger.Info().
		Str("recognition", cfg.Recognition.Provider).
		Str("synthesis", cfg.Synthesis.Provider).
		Msg("Speech providers initialized")
	return f, nil
}

// NewWithClient creates a factory whose openai provider uses client. It is
// used where the API endpoint is replaced.
func NewWithClient(recognition config.RecognitionConfig, synthesis config.SynthesisConfig, ttsClient openaitts.SpeechClient) *Factory {
	return &Factory{
		recognition: recognition,
		synthesis:   synthesis,
		logger:      logging.WithComponent("provider"),
		ttsClient:   ttsClient,
	}
}

// Capabilities returns fresh providers for one session. Synthesized audio
// that the provider does not play itself is written to out. A nil field
// means the capability is unavailable.
func (f *Factory) Capabilities(out speech.AudioOutput) speech.Capabilities {
	return speech.Capabilities{
		Recognizer:  f.recognizer(),
		Synthesizer: f.synthesizer(out),
	}
}

// Available reports which capabilities sessions will get.
func (f *Factory) Available() (recognition, synthesis bool) {
	recognition = f.recognition.Provider == config.ProviderMock ||
		(f.recognition.Provider == config.ProviderGoogle && f.speechClient != nil)
	synthesis = f.synthesis.Provider == config.ProviderMock ||
		(f.synthesis.Provider == config.ProviderOpenAI && f.ttsClient != nil)
	return recognition, synthesis
}

func (f *Factory) recognizer() speech.Recognizer {
	switch f.recognition.Provider {
	case config.ProviderMock:
		return mock.NewSimulatedRecognizer(simulatedFramesPerUtterance, simulatedResultDelay)
	case config.ProviderGoogle:
		if f.speechClient == nil {
			return nil
		}
		gcfg := google.DefaultConfig()
		gcfg.SampleRateHz = int32(f.recognition.SampleRateHz)
		gcfg.AudioEncoding = f.recognition.AudioEncoding
		gcfg.Model = f.recognition.Model
		return google.New(f.speechClient, gcfg)
	default:
		return nil
	}
}

func (f *Factory) synthesizer(out speech.AudioOutput) speech.Synthesizer {
	switch f.synthesis.Provider {
	case config.ProviderMock:
		return mock.NewSimulatedSynthesizer(simulatedUtteranceDuration)
	case config.ProviderOpenAI:
		if f.ttsClient == nil {
			return nil
		}
		return openaitts.New(f.ttsClient, openaitts.Config{
			Model:          f.synthesis.Model,
			Voice:          f.synthesis.Voice,
			ResponseFormat: f.synthesis.ResponseFormat,
		}, out)
	default:
		return nil
	}
}

// Close releases the shared clients.
func (f *Factory) Close() error {
	if f.speechClient == nil {
		return nil
	}
	err := f.speechClient.Close()
	f.speechClient = nil
	if err != nil {
		f.logger.Error().Err(err).Msg("Error closing google speech client")
	}
	return err
}
