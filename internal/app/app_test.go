package app

import (
	"context"
	"testing"

	"ai-speech-interaction-service/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Recognition.Provider = config.ProviderMock
	cfg.Synthesis.Provider = config.ProviderMock
	cfg.Kafka.Enabled = false
	return cfg
}

func TestNew_Lifecycle(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Ready() {
		t.Error("expected ready after Start")
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}
	a.Shutdown()
	if a.Ready() {
		t.Error("expected not ready after Shutdown")
	}
}

func TestNew_InvalidProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Provider = "unknown"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Reply.Template = "Heard %s"
	cfg.Session.MaxAudioBytes = 99

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	sc := a.SessionConfig()
	if sc.ReplyTemplate != "Heard %s" || sc.MaxAudioBytes != 99 || sc.Principal != cfg.Service.Principal {
		t.Errorf("SessionConfig = %+v", sc)
	}

	s := a.NewSession(nil)
	defer s.Close()
	if s.ID() == "" {
		t.Error("expected a session id")
	}
}
