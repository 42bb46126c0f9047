package bridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// tsUnset marks a millisecond timestamp field with no value. Telephony
// clocks start at zero, so zero itself is a valid reading.
const tsUnset int64 = -1

// Usage is the cumulative token count for one call.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Session is the mutable record shared by all leg handlers for the
// duration of one call. All access is serialized by the owning Bridge.
type Session struct {
	CallID    string
	StreamID  string
	StartedAt time.Time

	// Credential opens the model leg. Supplied when the telephony leg
	// attaches; never persisted.
	Credential string

	// SavedConfig holds the last session configuration received from the
	// observer leg. Applied key-by-key over the defaults whenever the
	// model leg (re)opens; cleared only by a full session reset.
	SavedConfig map[string]json.RawMessage

	// LastAssistantItemID identifies the in-flight assistant response
	// unit; empty between responses.
	LastAssistantItemID string

	// ResponseStartTS is the telephony-clock time at which the current
	// assistant response began playing; tsUnset between responses.
	ResponseStartTS int64

	// LatestMediaTS is the telephony-clock time of the most recent caller
	// audio frame.
	LatestMediaTS int64

	Usage Usage
}

func newSession() *Session {
	return &Session{
		CallID:          uuid.NewString(),
		ResponseStartTS: tsUnset,
	}
}

// beginStream records the provider-assigned stream id and rewinds all
// per-call playback bookkeeping.
func (s *Session) beginStream(streamID string) {
	s.StreamID = streamID
	s.StartedAt = time.Now().UTC()
	s.LatestMediaTS = 0
	s.clearResponse()
}

// clearResponse forgets the in-flight assistant response. Called on
// truncation and on natural response completion, so a late caller-speech
// event never truncates a response that already finished.
func (s *Session) clearResponse() {
	s.LastAssistantItemID = ""
	s.ResponseStartTS = tsUnset
}

// responseInFlight reports whether assistant audio may still be playing.
func (s *Session) responseInFlight() bool {
	return s.LastAssistantItemID != "" && s.ResponseStartTS != tsUnset
}

// reset returns the session to its zero value with a fresh call id.
func (s *Session) reset() {
	*s = *newSession()
}
