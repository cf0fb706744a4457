package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ai-speech-interaction-service/internal/config"
	"ai-speech-interaction-service/internal/events"
	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/observability/metrics"
	"ai-speech-interaction-service/internal/provider"
	"ai-speech-interaction-service/internal/schema"
	"ai-speech-interaction-service/internal/service/session"
	"ai-speech-interaction-service/internal/speech"
)

const serviceName = "ai-speech-interaction-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Providers *provider.Factory
	Publisher *events.Publisher
	Validator *schema.Validator

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    serviceName,
	})

	a := &Application{
		Cfg:      cfg,
		Logger:   logging.WithComponent("application"),
		Metrics:  metrics.DefaultMetrics,
		Gatherer: prometheus.DefaultGatherer,
	}

	providers, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init speech providers: %w", err)
	}
	a.Providers = providers

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicReply:      cfg.Kafka.TopicReply,
		Principal:       cfg.Kafka.Principal,
		Metrics:         a.Metrics,
	})
	a.Validator = schema.New()

	a.Logger.Info().
		Str("method", "New").
		Str("recognitionProvider", cfg.Recognition.Provider).
		Str("synthesisProvider", cfg.Synthesis.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("AI Speech Interaction service application created")
	return a, nil
}

// SessionConfig returns the policy applied to every voice session.
func (a *Application) SessionConfig() session.Config {
	return session.Config{
		Principal:     a.Cfg.Service.Principal,
		ReplyEnabled:  a.Cfg.Reply.Enabled,
		ReplyTemplate: a.Cfg.Reply.Template,
		MaxAudioBytes: a.Cfg.Session.MaxAudioBytes,
		ListenTimeout: a.Cfg.Recognition.ListenTimeout,
	}
}

// NewSession opens a voice session with fresh providers. Synthesized audio
// is written to out.
func (a *Application) NewSession(out speech.AudioOutput) *session.Session {
	return session.New(
		a.Providers.Capabilities(out),
		a.SessionConfig(),
		a.Publisher,
		session.WithMetrics(a.Metrics),
		session.WithValidator(a.Validator),
	)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)

	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("AI Speech Interaction service starting")
	return nil
}

// Ready reports whether the service accepts sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	a.Logger.Info().Str("method", "Shutdown").Msg("AI Speech Interaction service shutting down")

	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Error closing event publisher")
	}
	if err := a.Providers.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Error closing speech providers")
	}
}
