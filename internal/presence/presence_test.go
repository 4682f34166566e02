package presence

import (
	"context"
	"testing"
	"time"
)

func TestMarkThenLocate(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 2)
	ctx := context.Background()

	if err := svc.Mark(ctx, "alice", "room-1", "kitchen", 0.95, SourceVoiceAuth); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	loc, ok, err := svc.Locate(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Locate: ok=%v err=%v", ok, err)
	}
	if loc.RoomName != "kitchen" || loc.Confidence != 0.95 {
		t.Fatalf("loc = %+v", loc)
	}
}

func TestLocateUnknownUserReturnsFalse(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 2)
	_, ok, err := svc.Locate(context.Background(), "nobody")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want ok=false", ok, err)
	}
}

func TestLocateResolvesLooseNames(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 2)
	ctx := context.Background()
	_ = svc.Mark(ctx, "anna.schmidt", "room-1", "kitchen", 0.9, SourceVoiceAuth)
	_ = svc.Mark(ctx, "peter.anna", "room-2", "office", 0.9, SourceVoiceAuth)

	// First-name match wins over a last-name match on the same token.
	loc, ok, err := svc.Locate(ctx, "Anna")
	if err != nil || !ok {
		t.Fatalf("Locate(Anna): ok=%v err=%v", ok, err)
	}
	if loc.UserID != "anna.schmidt" {
		t.Fatalf("Locate(Anna).UserID = %q, want anna.schmidt", loc.UserID)
	}

	loc, ok, err = svc.Locate(ctx, "schmidt")
	if err != nil || !ok {
		t.Fatalf("Locate(schmidt): ok=%v err=%v", ok, err)
	}
	if loc.UserID != "anna.schmidt" {
		t.Fatalf("Locate(schmidt).UserID = %q, want anna.schmidt", loc.UserID)
	}
}

func TestObserveBeaconRequiresMinSamples(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 3)
	ctx := context.Background()

	if err := svc.ObserveBeacon(ctx, "bob", "room-2", "bedroom"); err != nil {
		t.Fatalf("ObserveBeacon: %v", err)
	}
	if _, ok, _ := svc.Locate(ctx, "bob"); ok {
		t.Fatalf("presence recorded before reaching min samples")
	}

	_ = svc.ObserveBeacon(ctx, "bob", "room-2", "bedroom")
	if err := svc.ObserveBeacon(ctx, "bob", "room-2", "bedroom"); err != nil {
		t.Fatalf("ObserveBeacon: %v", err)
	}

	loc, ok, err := svc.Locate(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("Locate after min samples: ok=%v err=%v", ok, err)
	}
	if loc.RoomName != "bedroom" {
		t.Fatalf("loc = %+v", loc)
	}
}

func TestObserveBeaconResetsOnRoomChange(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 2)
	ctx := context.Background()

	_ = svc.ObserveBeacon(ctx, "carol", "room-1", "kitchen")
	_ = svc.ObserveBeacon(ctx, "carol", "room-2", "office")
	if _, ok, _ := svc.Locate(ctx, "carol"); ok {
		t.Fatalf("switching rooms mid-accumulation should not satisfy the sample count")
	}
}

func TestAllPresentListsEveryoneCurrentlyTracked(t *testing.T) {
	svc := New(NewInMemoryBackend(), time.Minute, 1)
	ctx := context.Background()
	_ = svc.Mark(ctx, "dana", "room-1", "kitchen", 0.9, SourceVoiceAuth)
	_ = svc.Mark(ctx, "erin", "room-2", "office", 0.9, SourceVoiceAuth)

	all, err := svc.AllPresent(ctx)
	if err != nil {
		t.Fatalf("AllPresent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
}

func TestInMemoryBackendExpiresEntries(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()
	_ = b.Put(ctx, Record{UserID: "frank", RoomName: "den"}, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	if _, ok, _ := b.Get(ctx, "frank"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
}
