// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by RECOGNITION_PROVIDER and SYNTHESIS_PROVIDER.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	HTTP          HTTPConfig
	Recognition   RecognitionConfig
	Synthesis     SynthesisConfig
	Reply         ReplyConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
}

type HTTPConfig struct {
	Port           string
	AllowedOrigins []string
	RateLimit      int // requests per minute per IP, 0 disables
}

type RecognitionConfig struct {
	Provider      string
	SampleRateHz  int
	AudioEncoding string
	Model         string
	ListenTimeout time.Duration // 0 listens until the provider ends the session
}

type SynthesisConfig struct {
	Provider       string
	OpenAIAPIKey   string
	Model          string
	Voice          string
	ResponseFormat string
}

// ReplyConfig controls the spoken reply to each new transcript.
type ReplyConfig struct {
	Enabled  bool
	Template string // fmt template with a single %s for the transcript
}

// SessionConfig bounds a single voice session.
type SessionConfig struct {
	MaxAudioBytes int64 // per listening session, 0 disables
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicReply      string
	Principal       string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration. Unparseable values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-interaction")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
		},
		HTTP: HTTPConfig{
			Port:           envOrDefault("HTTP_PORT", "8080"),
			AllowedOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimit:      envOrDefaultInt("HTTP_RATE_LIMIT", 120),
		},
		Recognition: RecognitionConfig{
			Provider:      strings.ToLower(envOrDefault("RECOGNITION_PROVIDER", ProviderMock)),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Model:         os.Getenv("STT_MODEL"),
			ListenTimeout: envOrDefaultDuration("LISTEN_TIMEOUT", 0),
		},
		Synthesis: SynthesisConfig{
			Provider:       strings.ToLower(envOrDefault("SYNTHESIS_PROVIDER", ProviderMock)),
			OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
			Model:          envOrDefault("TTS_MODEL", "tts-1"),
			Voice:          envOrDefault("TTS_VOICE", "alloy"),
			ResponseFormat: envOrDefault("TTS_RESPONSE_FORMAT", "mp3"),
		},
		Reply: ReplyConfig{
			Enabled:  envOrDefaultBool("REPLY_ENABLED", true),
			Template: envOrDefault("REPLY_TEMPLATE", "You said: %s. I will now explain React to you."),
		},
		Session: SessionConfig{
			MaxAudioBytes: int64(envOrDefaultInt("SESSION_MAX_AUDIO_BYTES", 5*1024*1024)),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "voice.transcript"),
			TopicReply:      envOrDefault("KAFKA_TOPIC_REPLY", "voice.reply"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// envOrDefaultList splits a comma separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
