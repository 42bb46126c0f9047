// Package realtime defines the protocol spoken over the AI-model leg and
// the dialer that opens it.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Server event types the bridge reacts to. Everything else is relayed
// opaquely to the observer leg.
const (
	TypeError                  = "error"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeResponseAudioDelta     = "response.audio.delta"
	TypeResponseDone           = "response.done"
	TypeOutputItemDone         = "response.output_item.done"
	TypeInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	TypeAudioTranscriptDone    = "response.audio_transcript.done"
	TypeSessionUpdate          = "session.update"
)

// ServerEvent is the decoded view of one inbound model-leg frame. Raw keeps
// the original bytes for verbatim relay.
type ServerEvent struct {
	Type       string           `json:"type"`
	Delta      string           `json:"delta,omitempty"`
	ItemID     string           `json:"item_id,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	Code       string           `json:"code,omitempty"`
	Response   *ResponsePayload `json:"response,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type ResponsePayload struct {
	Usage *Usage `json:"usage,omitempty"`
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ParseServerEvent decodes an inbound model frame, preserving the raw bytes.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var evt ServerEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return ServerEvent{}, fmt.Errorf("invalid model event: %w", err)
	}
	if evt.Type == "" {
		return ServerEvent{}, fmt.Errorf("model event missing type")
	}
	evt.Raw = raw
	return evt, nil
}

// Client events.

type SessionUpdateEvent struct {
	Type    string         `json:"type"`
	Session map[string]any `json:"session"`
}

type ResponseCreateEvent struct {
	Type string `json:"type"`
}

type InputAudioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type ItemTruncateEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

func NewResponseCreate() ResponseCreateEvent {
	return ResponseCreateEvent{Type: "response.create"}
}

func NewInputAudioAppend(audio string) InputAudioAppendEvent {
	return InputAudioAppendEvent{Type: "input_audio_buffer.append", Audio: audio}
}

func NewItemTruncate(itemID string, audioEndMS int64) ItemTruncateEvent {
	return ItemTruncateEvent{Type: "conversation.item.truncate", ItemID: itemID, ContentIndex: 0, AudioEndMS: audioEndMS}
}

// SessionDefaults are the fixed settings every call starts from: audio in
// and out as telephony-native g711 mu-law, server-side voice activity
// detection, and caller-audio transcription.
type SessionDefaults struct {
	Voice              string
	TranscriptionModel string
	Instructions       string
	Temperature        float64
}

// NewSessionUpdate builds the one configuration frame sent after the model
// leg opens. Observer-supplied overrides win key-by-key over the defaults.
func NewSessionUpdate(defaults SessionDefaults, overrides map[string]json.RawMessage) SessionUpdateEvent {
	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"turn_detection":      map[string]any{"type": "server_vad"},
		"voice":               defaults.Voice,
		"instructions":        defaults.Instructions,
		"temperature":         defaults.Temperature,
		"input_audio_format":  "g711_ulaw",
		"output_audio_format": "g711_ulaw",
		"input_audio_transcription": map[string]any{
			"model": defaults.TranscriptionModel,
		},
	}
	for key, value := range overrides {
		session[key] = value
	}
	return SessionUpdateEvent{Type: "session.update", Session: session}
}
