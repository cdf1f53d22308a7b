package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

type fakeSource struct {
	calls   [][]string
	results map[string]engine.ChannelMetadata
}

func (f *fakeSource) FetchByID(ctx context.Context, ids []string) (map[string]engine.ChannelMetadata, map[string]error, error) {
	f.calls = append(f.calls, ids)
	out := make(map[string]engine.ChannelMetadata)
	perID := make(map[string]error)
	for _, id := range ids {
		if meta, ok := f.results[id]; ok {
			out[id] = meta
		} else {
			perID[id] = engine.ErrChannelNotFound
		}
	}
	return out, perID, nil
}

func TestCachedSourceHit(t *testing.T) {
	inner := &fakeSource{results: map[string]engine.ChannelMetadata{
		"UCa": {ChannelID: "UCa", Title: "A"},
		"UCb": {ChannelID: "UCb", Title: "B"},
	}}
	c := NewCachedSource(inner, "", time.Minute)
	ctx := context.Background()

	out, _, err := c.FetchByID(ctx, []string{"UCa", "UCb"})
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("first fetch returned %d entries, want 2", len(out))
	}

	// Second fetch must be served entirely from L1.
	out, _, err = c.FetchByID(ctx, []string{"UCa", "UCb"})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if out["UCa"].Title != "A" || out["UCb"].Title != "B" {
		t.Errorf("cached entries corrupted: %v", out)
	}
	if len(inner.calls) != 1 {
		t.Errorf("inner source called %d times, want 1", len(inner.calls))
	}
}

func TestCachedSourceForwardsMissesOnly(t *testing.T) {
	inner := &fakeSource{results: map[string]engine.ChannelMetadata{
		"UCa":   {ChannelID: "UCa", Title: "A"},
		"UCnew": {ChannelID: "UCnew", Title: "New"},
	}}
	c := NewCachedSource(inner, "", time.Minute)
	ctx := context.Background()

	if _, _, err := c.FetchByID(ctx, []string{"UCa"}); err != nil {
		t.Fatal(err)
	}
	out, _, err := c.FetchByID(ctx, []string{"UCa", "UCnew"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	last := inner.calls[len(inner.calls)-1]
	if len(last) != 1 || last[0] != "UCnew" {
		t.Errorf("inner received %v, want only the miss [UCnew]", last)
	}
}

func TestCachedSourceDoesNotCacheNotFound(t *testing.T) {
	inner := &fakeSource{results: map[string]engine.ChannelMetadata{}}
	c := NewCachedSource(inner, "", time.Minute)
	ctx := context.Background()

	c.FetchByID(ctx, []string{"UCgone"})
	c.FetchByID(ctx, []string{"UCgone"})
	if len(inner.calls) != 2 {
		t.Errorf("inner called %d times, want 2 (misses are not cached)", len(inner.calls))
	}
}
