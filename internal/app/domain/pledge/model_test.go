package pledge

import (
	"testing"
	"time"
)

func TestEgg_Matches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	egg := Egg{ID: "a", Owner: "alice", EditCount: 1, SentAt: now, Wish: "health", Colour: "red"}

	if !egg.Matches(egg) {
		t.Fatalf("an egg should match itself")
	}

	// The identifier is a query handle, not part of record equality.
	other := egg
	other.ID = "b"
	if !egg.Matches(other) {
		t.Fatalf("identifiers should not participate in matching")
	}

	for name, mutate := range map[string]func(*Egg){
		"owner":      func(e *Egg) { e.Owner = "bob" },
		"edit_count": func(e *Egg) { e.EditCount = 2 },
		"sent_at":    func(e *Egg) { e.SentAt = now.Add(time.Second) },
		"wish":       func(e *Egg) { e.Wish = "wealth" },
		"colour":     func(e *Egg) { e.Colour = "blue" },
	} {
		changed := egg
		mutate(&changed)
		if egg.Matches(changed) {
			t.Fatalf("%s should participate in matching", name)
		}
	}

	// Timestamp equality is instant-based, not representation-based.
	loc := time.FixedZone("UTC+2", 2*60*60)
	shifted := egg
	shifted.SentAt = now.In(loc)
	if !egg.Matches(shifted) {
		t.Fatalf("equal instants in different zones should match")
	}
}
