// Package transcript archives the observer-side view of a call: transcript
// lines assembled from model events, and usage snapshots. It is a pure tap;
// nothing in the bridging path depends on it.
package transcript

import (
	"context"
	"time"
)

// Line is one finished caller or assistant utterance.
type Line struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageRecord is a cumulative token-usage snapshot for a call.
type UsageRecord struct {
	CallID       string    `json:"call_id"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Store persists transcript lines and usage snapshots.
type Store interface {
	SaveLine(ctx context.Context, line Line) error
	SaveUsage(ctx context.Context, record UsageRecord) error
	RecentLines(ctx context.Context, callID string, limit int) ([]Line, error)
	Close() error
}
