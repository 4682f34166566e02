package memory

import (
	"context"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, "sess-1", RoleUser, "hi", nil); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.Save(ctx, "sess-1", RoleAssistant, "hello", nil); err != nil {
		t.Fatalf("save assistant: %v", err)
	}

	got, err := s.Load(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != RoleUser || got[0].Content != "hi" {
		t.Fatalf("unexpected first message: %+v", got[0])
	}
	if got[1].Role != RoleAssistant || got[1].Content != "hello" {
		t.Fatalf("unexpected second message: %+v", got[1])
	}
}

func TestInMemoryStoreLoadLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.Save(ctx, "sess-2", RoleUser, "msg", nil)
	}
	got, err := s.Load(ctx, "sess-2", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages with limit, got %d", len(got))
	}
}

func TestInMemoryFactStore(t *testing.T) {
	fs := NewInMemoryFactStore()
	ctx := context.Background()
	if err := fs.SaveFact(ctx, Fact{UserID: "u1", Category: "pet", Content: "dog named Rex"}); err != nil {
		t.Fatalf("save fact: %v", err)
	}
	facts, err := fs.Retrieve(ctx, "u1", "", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(facts) != 1 || facts[0].Content != "dog named Rex" {
		t.Fatalf("unexpected facts: %+v", facts)
	}
}
