package transcript

import (
	"context"
	"testing"
)

func TestInMemoryStoreLines(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, content := range []string{"hello", "hi there", "bye"} {
		if err := s.SaveLine(ctx, Line{CallID: "call-1", Role: "caller", Content: content}); err != nil {
			t.Fatalf("SaveLine() error = %v", err)
		}
	}
	if err := s.SaveLine(ctx, Line{CallID: "call-2", Role: "assistant", Content: "other call"}); err != nil {
		t.Fatalf("SaveLine() error = %v", err)
	}

	lines, err := s.RecentLines(ctx, "call-1", 2)
	if err != nil {
		t.Fatalf("RecentLines() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].Content != "hi there" || lines[1].Content != "bye" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if lines[0].ID == "" {
		t.Fatalf("line ID should be assigned")
	}
}

func TestInMemoryStoreUsageUpsert(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.SaveUsage(ctx, UsageRecord{CallID: "call-1", InputTokens: 10, OutputTokens: 5}); err != nil {
		t.Fatalf("SaveUsage() error = %v", err)
	}
	if err := s.SaveUsage(ctx, UsageRecord{CallID: "call-1", InputTokens: 17, OutputTokens: 8}); err != nil {
		t.Fatalf("SaveUsage() error = %v", err)
	}

	s.mu.RLock()
	record := s.usage["call-1"]
	s.mu.RUnlock()
	if record.InputTokens != 17 || record.OutputTokens != 8 {
		t.Fatalf("usage = %+v, want latest snapshot", record)
	}
}
