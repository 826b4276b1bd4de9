package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/bank-bridge/internal/linking"
)

func TestPutGetDelete(t *testing.T) {
	store := New(time.Hour)
	ctx := context.Background()

	sess := linking.Session{ReferenceID: "ref-1"}
	if err := store.Put(ctx, "sess-1", sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v), want hit", ok, err)
	}
	if got.ReferenceID != "ref-1" {
		t.Errorf("ReferenceID = %q", got.ReferenceID)
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "sess-1"); ok {
		t.Error("session survived Delete")
	}
}

func TestGetMissing(t *testing.T) {
	store := New(time.Hour)

	_, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Get reported a hit for a missing session")
	}
}

func TestExpiry(t *testing.T) {
	store := New(time.Hour)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Put(ctx, "sess-1", linking.Session{ReferenceID: "ref-1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, ok, _ := store.Get(ctx, "sess-1"); ok {
		t.Error("expired session was returned")
	}
}

func TestGetSlidesExpiry(t *testing.T) {
	store := New(time.Hour)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Put(ctx, "sess-1", linking.Session{ReferenceID: "ref-1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Touch the session every 45 minutes; it must stay alive well past
	// the original deadline.
	for i := 0; i < 4; i++ {
		current = current.Add(45 * time.Minute)
		if _, ok, _ := store.Get(ctx, "sess-1"); !ok {
			t.Fatalf("session expired after %d touches", i)
		}
	}
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	store := New(time.Hour)
	if err := store.Delete(context.Background(), "nope"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}
