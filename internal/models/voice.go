// Package models defines the events published for voice sessions.
package models

// Event types.
const (
	EventTypeTranscriptUpdated = "voice.transcript.updated"
	EventTypeReplyRequested    = "voice.reply.requested"
)

// TranscriptUpdated is emitted when a session's accumulated transcript changes.
type TranscriptUpdated struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	Principal  string  `json:"principal"`
	Timestamp  int64   `json:"timestamp"`
	Transcript string  `json:"transcript"`
	Fragment   string  `json:"fragment,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ReplyRequested is emitted when the session asks the synthesizer to speak.
type ReplyRequested struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Principal  string `json:"principal"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text"`
	Transcript string `json:"transcript,omitempty"` // empty for requested text
}
