package transcript

import (
	"context"
	"log"
	"time"
)

// Archiver adapts a Store to the fire-and-forget tap the bridge expects.
// Writes run in their own goroutine so an unavailable store can never stall
// a live call.
type Archiver struct {
	store   Store
	timeout time.Duration
}

func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store, timeout: 5 * time.Second}
}

func (a *Archiver) ArchiveLine(callID, role, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.store.SaveLine(ctx, Line{CallID: callID, Role: role, Content: text}); err != nil {
			log.Printf("transcript archive failed for call %s: %v", callID, err)
		}
	}()
}

func (a *Archiver) ArchiveUsage(callID string, input, output int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		record := UsageRecord{CallID: callID, InputTokens: input, OutputTokens: output}
		if err := a.store.SaveUsage(ctx, record); err != nil {
			log.Printf("usage archive failed for call %s: %v", callID, err)
		}
	}()
}
