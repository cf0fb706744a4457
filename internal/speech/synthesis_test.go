package speech_test

import (
	"testing"

	"ai-speech-interaction-service/internal/speech"
)

func TestSelectVoice(t *testing.T) {
	tests := []struct {
		name   string
		voices []speech.Voice
		want   string
		found  bool
	}{
		{
			name: "google beats default",
			voices: []speech.Voice{
				{Name: "Samantha", Default: true},
				{Name: "Google TTS"},
			},
			want:  "Google TTS",
			found: true,
		},
		{
			name: "google beats microsoft",
			voices: []speech.Voice{
				{Name: "Microsoft Zira"},
				{Name: "Google UK English Female"},
			},
			want:  "Google UK English Female",
			found: true,
		},
		{
			name: "microsoft beats default",
			voices: []speech.Voice{
				{Name: "Samantha", Default: true},
				{Name: "Microsoft David"},
			},
			want:  "Microsoft David",
			found: true,
		},
		{
			name: "default when no vendor voice",
			voices: []speech.Voice{
				{Name: "Alex"},
				{Name: "Samantha", Default: true},
			},
			want:  "Samantha",
			found: true,
		},
		{
			name: "first match wins",
			voices: []speech.Voice{
				{Name: "Google A"},
				{Name: "Google B"},
			},
			want:  "Google A",
			found: true,
		},
		{
			name:   "none",
			voices: []speech.Voice{{Name: "Alex"}, {Name: "Fred"}},
			found:  false,
		},
		{
			name:  "empty list",
			found: false,
		},
		{
			name:   "case sensitive",
			voices: []speech.Voice{{Name: "google lowercase"}},
			found:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := speech.SelectVoice(tt.voices)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && got.Name != tt.want {
				t.Errorf("SelectVoice() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestNewUtterance(t *testing.T) {
	u := speech.NewUtterance("hello")

	if u.Text != "hello" {
		t.Errorf("expected text 'hello', got %q", u.Text)
	}
	if u.Lang != "en-US" {
		t.Errorf("expected lang en-US, got %q", u.Lang)
	}
	if u.Rate != speech.DefaultRate || u.Pitch != speech.DefaultPitch || u.Volume != speech.DefaultVolume {
		t.Errorf("unexpected parameters %+v", u)
	}
	if u.Voice != nil {
		t.Error("expected no voice")
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&speech.RecognitionError{Code: "no-speech"}, "no-speech"},
		{&speech.RecognitionError{Code: "network", Message: "unavailable"}, "network: unavailable"},
		{&speech.SynthesisError{Code: "interrupted"}, "interrupted"},
		{&speech.SynthesisError{Code: "not-allowed", Message: "bad key"}, "not-allowed: bad key"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if speech.ListeningActive.String() != "LISTENING" {
		t.Errorf("unexpected %s", speech.ListeningActive)
	}
	if speech.SpeakingActive.String() != "SPEAKING" {
		t.Errorf("unexpected %s", speech.SpeakingActive)
	}
	if speech.ListeningState(9).String() != "UNKNOWN(9)" {
		t.Errorf("unexpected %s", speech.ListeningState(9))
	}
}
