//go:build integration

package store

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

func connectTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	db, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// freshChannelID yields an id no previous run could have inserted.
func freshChannelID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "UC" + hex[:22]
}

func TestIntegration_UpsertCreatedFlag(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()
	id := freshChannelID()

	created, err := db.Upsert(ctx, id, engine.ChannelPatch{Title: engine.Str("one")})
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if !created {
		t.Error("first Upsert reported created = false")
	}

	created, err = db.Upsert(ctx, id, engine.ChannelPatch{Title: engine.Str("two")})
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created {
		t.Error("second Upsert reported created = true")
	}

	rec, err := db.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.Title != "two" {
		t.Errorf("record after upserts = %+v, want Title %q", rec, "two")
	}
}

func TestIntegration_UpsertConcurrentFirstInsert(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()
	id := freshChannelID()

	const writers = 8
	var (
		wg           sync.WaitGroup
		createdCount atomic.Int64
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := db.Upsert(ctx, id, engine.ChannelPatch{Title: engine.Str("racer")})
			if err != nil {
				t.Errorf("Upsert: %v", err)
				return
			}
			if created {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := createdCount.Load(); n != 1 {
		t.Errorf("created reported by %d writers, want exactly 1", n)
	}
}
