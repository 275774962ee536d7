package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/voxlate/voxlate/internal/arbiter"
)

func TestHistory_BoundsToMax(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(Exchange{
			Transcript:  fmt.Sprintf("source %d", i),
			Translation: fmt.Sprintf("target %d", i),
			Mode:        arbiter.ModeStreaming,
			At:          time.Now(),
		})
	}

	got := h.Recent()
	if len(got) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(got))
	}
	// Oldest first, holding the three most recent exchanges.
	for i, want := range []string{"source 3", "source 4", "source 5"} {
		if got[i].Transcript != want {
			t.Errorf("entry %d transcript = %q, want %q", i, got[i].Transcript, want)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Len = %d, want 3", h.Len())
	}
}

func TestHistory_DefaultSize(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	for i := 0; i < defaultHistorySize+10; i++ {
		h.Add(Exchange{Translation: fmt.Sprintf("t%d", i)})
	}
	if h.Len() != defaultHistorySize {
		t.Errorf("Len = %d, want the default bound %d", h.Len(), defaultHistorySize)
	}
}

func TestHistory_RecentReturnsCopy(t *testing.T) {
	t.Parallel()

	h := NewHistory(4)
	h.Add(Exchange{Translation: "original"})

	snap := h.Recent()
	snap[0].Translation = "mutated"

	if got := h.Recent()[0].Translation; got != "original" {
		t.Errorf("internal entry = %q, want %q", got, "original")
	}
}

func TestHistory_EmptyRecent(t *testing.T) {
	t.Parallel()

	h := NewHistory(4)
	if got := h.Recent(); len(got) != 0 {
		t.Errorf("Recent on empty history returned %d entries", len(got))
	}
	if h.Len() != 0 {
		t.Errorf("Len on empty history = %d", h.Len())
	}
}
