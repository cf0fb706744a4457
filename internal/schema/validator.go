// Package schema checks events before they are published.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ai-speech-interaction-service/internal/models"
	"ai-speech-interaction-service/internal/observability/logging"
)

// ErrUnknownEvent is returned for event types the validator does not know.
var ErrUnknownEvent = errors.New("unknown event type")

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	EventType string
	Fields    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s event: missing or invalid %s", e.EventType, strings.Join(e.Fields, ", "))
}

type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

// Validate checks required fields of a known event.
func (v *Validator) Validate(event any) error {
	var (
		eventType string
		missing   []string
	)

	switch e := event.(type) {
	case *models.TranscriptUpdated:
		eventType = models.EventTypeTranscriptUpdated
		missing = checkCommon(e.EventType, eventType, e.SessionID, e.Timestamp)
		if strings.TrimSpace(e.Transcript) == "" {
			missing = append(missing, "transcript")
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			missing = append(missing, "confidence")
		}
	case *models.ReplyRequested:
		eventType = models.EventTypeReplyRequested
		missing = checkCommon(e.EventType, eventType, e.SessionID, e.Timestamp)
		if strings.TrimSpace(e.Text) == "" {
			missing = append(missing, "text")
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	if len(missing) > 0 {
		err := &ValidationError{EventType: eventType, Fields: missing}
		v.logger.Warn().Strs("fields", missing).Str("eventType", eventType).Msg("Event failed validation")
		return err
	}

	v.logger.Debug().Str("eventType", eventType).Msg("Event validated")
	return nil
}

func checkCommon(got, want, sessionID string, timestamp int64) []string {
	var missing []string
	if got != want {
		missing = append(missing, "eventType")
	}
	if sessionID == "" {
		missing = append(missing, "sessionId")
	}
	if timestamp <= 0 {
		missing = append(missing, "timestamp")
	}
	return missing
}
