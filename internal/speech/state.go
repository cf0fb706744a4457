package speech

import "fmt"

// ListeningState is the recognition side of the controller state machine.
//
//	Idle ──StartListening──→ Listening ──end / error / StopListening──→ Idle
//	Idle ──StartListening (no capability)──→ Idle, error set
type ListeningState int

const (
	ListeningIdle ListeningState = iota
	ListeningActive
)

func (s ListeningState) String() string {
	switch s {
	case ListeningIdle:
		return "IDLE"
	case ListeningActive:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// SpeakingState is the synthesis side of the controller state machine.
//
//	Idle ──Speak──→ Speaking ──end / error──→ Idle
//	Idle ──Speak (no capability)──→ Idle, error set
type SpeakingState int

const (
	SpeakingIdle SpeakingState = iota
	SpeakingActive
)

func (s SpeakingState) String() string {
	switch s {
	case SpeakingIdle:
		return "IDLE"
	case SpeakingActive:
		return "SPEAKING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// State is the observable controller state. An empty Error means no error.
// Generation identifies the recognition session the transcript belongs to;
// it increases with every session StartListening begins.
type State struct {
	Listening  bool   `json:"isListening"`
	Speaking   bool   `json:"isSpeaking"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
}

// ListeningState returns the recognition state machine position.
func (s State) ListeningState() ListeningState {
	if s.Listening {
		return ListeningActive
	}
	return ListeningIdle
}

// SpeakingState returns the synthesis state machine position.
func (s State) SpeakingState() SpeakingState {
	if s.Speaking {
		return SpeakingActive
	}
	return SpeakingIdle
}
