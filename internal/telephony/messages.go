// Package telephony defines the media-stream wire protocol spoken by the
// telephony provider over its websocket leg.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EventType identifies telephony websocket payload variants.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventMark      EventType = "mark"
	EventStop      EventType = "stop"
	// EventClose is an alias some providers use instead of stop.
	EventClose EventType = "close"
)

var ErrUnsupportedEvent = errors.New("unsupported telephony event")

type Envelope struct {
	Event EventType `json:"event"`
}

// ConnectedEvent is the provider's handshake frame. Carries nothing we need.
type ConnectedEvent struct {
	Event EventType `json:"event"`
}

type StartEvent struct {
	Event EventType    `json:"event"`
	Start StartPayload `json:"start"`
}

type StartPayload struct {
	StreamSID string `json:"streamSid"`
}

type MediaEvent struct {
	Event EventType    `json:"event"`
	Media MediaPayload `json:"media"`
}

type MediaPayload struct {
	Payload   string `json:"payload"`
	Timestamp Millis `json:"timestamp"`
}

// MarkEvent is the provider echoing a playback checkpoint we sent earlier.
type MarkEvent struct {
	Event EventType `json:"event"`
}

type StopEvent struct {
	Event EventType `json:"event"`
}

// Millis is a millisecond timestamp on the telephony clock. Providers send
// it either as a JSON number or as a quoted decimal string.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*m = Millis(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = Millis(n)
	return nil
}

// ParseEvent decodes one inbound telephony frame into its typed variant.
func ParseEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Event {
	case EventConnected:
		return ConnectedEvent{Event: env.Event}, nil
	case EventStart:
		var msg StartEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Start.StreamSID == "" {
			return nil, errors.New("start event missing streamSid")
		}
		return msg, nil
	case EventMedia:
		var msg MediaEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Media.Payload == "" {
			return nil, errors.New("media event missing payload")
		}
		return msg, nil
	case EventMark:
		return MarkEvent{Event: env.Event}, nil
	case EventStop, EventClose:
		return StopEvent{Event: EventStop}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// Outbound frames. All are addressed by the stream id the provider assigned
// at call start.

type OutboundMedia struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     OutboundMediaPayload `json:"media"`
}

type OutboundMediaPayload struct {
	Payload string `json:"payload"`
}

type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      MarkPayload `json:"mark"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type OutboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func NewOutboundMedia(streamSID, payload string) OutboundMedia {
	return OutboundMedia{Event: "media", StreamSID: streamSID, Media: OutboundMediaPayload{Payload: payload}}
}

func NewOutboundMark(streamSID string) OutboundMark {
	return OutboundMark{Event: "mark", StreamSID: streamSID, Mark: MarkPayload{Name: "responsePart"}}
}

func NewOutboundClear(streamSID string) OutboundClear {
	return OutboundClear{Event: "clear", StreamSID: streamSID}
}
