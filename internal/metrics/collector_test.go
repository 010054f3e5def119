package metrics

import (
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpPGWrite, 10*time.Millisecond)
	c.RecordTiming(OpPGWrite, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.PGWrite == nil {
		t.Fatal("expected pg_write snapshot")
	}
	if snap.PGWrite.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.PGWrite.Count)
	}
	if snap.PGWrite.MinTimeMs != 10 {
		t.Errorf("MinTimeMs = %d, want 10", snap.PGWrite.MinTimeMs)
	}
	if snap.PGWrite.MaxTimeMs != 30 {
		t.Errorf("MaxTimeMs = %d, want 30", snap.PGWrite.MaxTimeMs)
	}
	if snap.PGWrite.AvgTimeMs != 20 {
		t.Errorf("AvgTimeMs = %f, want 20", snap.PGWrite.AvgTimeMs)
	}
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(100*time.Millisecond, 5, 12)
	c.RecordLLMUsage(200*time.Millisecond, 3, 8)

	snap := c.Snapshot()
	if snap.LLMGenerate == nil {
		t.Fatal("expected llm_generate snapshot")
	}
	if snap.LLMGenerate.TotalInputTokens != 8 {
		t.Errorf("TotalInputTokens = %d, want 8", snap.LLMGenerate.TotalInputTokens)
	}
	if snap.LLMGenerate.TotalOutputTokens != 20 {
		t.Errorf("TotalOutputTokens = %d, want 20", snap.LLMGenerate.TotalOutputTokens)
	}
}

func TestSnapshotEmptyOps(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()

	if snap.GraphWrite != nil {
		t.Error("expected nil snapshot for unrecorded operation")
	}
}
