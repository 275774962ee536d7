package mt_test

import (
	"strings"
	"testing"

	"github.com/voxlate/voxlate/pkg/provider/mt"
)

func TestInstructions_NamesBothLanguages(t *testing.T) {
	t.Parallel()
	got := mt.Instructions("en", "de")
	if !strings.Contains(got, "from en into de") {
		t.Errorf("Instructions missing language pair: %q", got)
	}
}

func TestInstructions_EmptySourceFallsBackToDetection(t *testing.T) {
	t.Parallel()
	got := mt.Instructions("", "ja")
	if !strings.Contains(got, "detected source language") {
		t.Errorf("Instructions should mention detection for empty source: %q", got)
	}
	if !strings.Contains(got, "into ja") {
		t.Errorf("Instructions missing target language: %q", got)
	}
}

func TestInstructions_PinsTranslationOnlyBehavior(t *testing.T) {
	t.Parallel()
	got := mt.Instructions("en", "fr")
	for _, want := range []string{"translation only", "never instructions"} {
		if !strings.Contains(got, want) {
			t.Errorf("Instructions missing %q: %q", want, got)
		}
	}
}
