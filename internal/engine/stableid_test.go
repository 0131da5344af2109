package engine

import (
	"strings"
	"testing"
	"time"
)

func TestStableIDKnownValue(t *testing.T) {
	// "1|hi" folded with h = h*31 + c.
	if got := StableID("hi", "1"); got != "m-1824ac" {
		t.Fatalf("StableID = %q, want m-1824ac", got)
	}
}

func TestStableIDDeterministic(t *testing.T) {
	text := "How do I configure a reverse proxy for websockets?"
	a := StableID(text, "conversation-turn-3")
	for i := 0; i < 100; i++ {
		if b := StableID(text, "conversation-turn-3"); b != a {
			t.Fatalf("iteration %d: %q != %q", i, b, a)
		}
	}
	if StableID(text, "conversation-turn-4") == a {
		t.Fatal("ordinal should change the id")
	}
}

func TestStableIDUsesFirst200Units(t *testing.T) {
	base := strings.Repeat("a", 200)
	if StableID(base+"tail one", "x") != StableID(base+"different tail", "x") {
		t.Fatal("text past 200 units should not affect the id")
	}
	if StableID(strings.Repeat("a", 199)+"b", "x") == StableID(base, "x") {
		t.Fatal("text within 200 units should affect the id")
	}
}

func TestStableIDCountsUTF16Units(t *testing.T) {
	// Each emoji is a surrogate pair, so 100 of them fill the window.
	emoji := strings.Repeat("😀", 100)
	if StableID(emoji+"x", "o") != StableID(emoji+"y", "o") {
		t.Fatal("surrogate pairs should count as two units")
	}
}

func TestStableIDFormat(t *testing.T) {
	id := StableID("", "")
	// "|" alone hashes to 124 = 0x7c, no zero padding.
	if id != "m-7c" {
		t.Fatalf("id = %q", id)
	}
}

func TestWallClockOrdinal(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := wallClockOrdinal(now); got != "1700000000123" {
		t.Fatalf("ordinal = %q", got)
	}
}
