package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	j, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(filepath.Join(home, ".go_botgraph", "runs.db")); err != nil {
		t.Errorf("journal not under home dir: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := j.Record(ctx, Run{
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + 10*time.Minute),
			Seeds:      []string{"UCseed1", "UCseed2"},
			Hops:       2,
			Processed:  10 + i,
			Created:    5,
			Frontier:   7,
			Status:     "ok",
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent returned %d runs, want 2", len(runs))
	}
	if runs[0].Processed != 12 {
		t.Errorf("newest run Processed = %d, want 12", runs[0].Processed)
	}
	if len(runs[0].Seeds) != 2 || runs[0].Seeds[0] != "UCseed1" {
		t.Errorf("Seeds round-trip failed: %v", runs[0].Seeds)
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("StartedAt = %v, want %v", runs[0].StartedAt, base.Add(2*time.Hour))
	}
}

func TestRecordAssignsID(t *testing.T) {
	j := openTestJournal(t)
	id, err := j.Record(context.Background(), Run{Status: "ok"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Error("empty run ID")
	}
}

func TestRecordKeepsError(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	if _, err := j.Record(ctx, Run{Status: "aborted", Error: "metadata API credentials rejected"}); err != nil {
		t.Fatal(err)
	}
	runs, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].Status != "aborted" || runs[0].Error == "" {
		t.Errorf("run = %+v, want aborted with error text", runs[0])
	}
}
