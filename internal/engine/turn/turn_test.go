package turn_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	enginepkg "github.com/voxlate/voxlate/internal/engine"
	"github.com/voxlate/voxlate/internal/engine/turn"
	"github.com/voxlate/voxlate/internal/glossary"
	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/mt"
	mtmock "github.com/voxlate/voxlate/pkg/provider/mt/mock"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	sttmock "github.com/voxlate/voxlate/pkg/provider/stt/mock"
	"github.com/voxlate/voxlate/pkg/provider/tts"
	ttsmock "github.com/voxlate/voxlate/pkg/provider/tts/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// testSegment returns a 100 ms speech segment in the pipeline format.
func testSegment() audio.SpeechSegment {
	return audio.SpeechSegment{
		PCM:    make([]byte, 3200),
		Format: audio.PipelineFormat,
	}
}

var deToEn = enginepkg.LangPair{Source: "de", Target: "en"}

// ─── TestTranslateSegment_RunsAllStages ──────────────────────────────────────

// TestTranslateSegment_RunsAllStages verifies the full cascade: each provider
// is called exactly once, the request fields are forwarded correctly, and the
// result carries all stage outputs plus timings.
func TestTranslateSegment_RunsAllStages(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{
		Result: stt.Result{Text: "guten morgen", Language: "de"},
	}
	mtP := &mtmock.Provider{
		Result: mt.Result{Text: "good morning"},
	}
	ttsP := &ttsmock.Provider{
		SynthesizeResult: tts.Result{
			Audio:  []byte{0x01, 0x02, 0x03, 0x04},
			Format: audio.Format{SampleRate: 24000, Channels: 1},
		},
	}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{ID: "alloy"})

	res, err := e.TranslateSegment(context.Background(), testSegment(), deToEn)
	if err != nil {
		t.Fatalf("TranslateSegment: unexpected error: %v", err)
	}

	if res.Transcript != "guten morgen" {
		t.Errorf("Transcript: want %q, got %q", "guten morgen", res.Transcript)
	}
	if res.Translation != "good morning" {
		t.Errorf("Translation: want %q, got %q", "good morning", res.Translation)
	}
	if len(res.Audio) != 4 {
		t.Errorf("Audio length: want 4, got %d", len(res.Audio))
	}
	if res.AudioFormat.SampleRate != 24000 {
		t.Errorf("AudioFormat.SampleRate: want 24000, got %d", res.AudioFormat.SampleRate)
	}
	if res.Stages.Total <= 0 {
		t.Error("Stages.Total must be positive")
	}
	if res.Stages.Correct != 0 {
		t.Error("Stages.Correct must be zero without a corrector")
	}

	// Each provider called exactly once with the forwarded fields.
	if len(sttP.TranscribeCalls) != 1 {
		t.Fatalf("STT calls: want 1, got %d", len(sttP.TranscribeCalls))
	}
	sttReq := sttP.TranscribeCalls[0].Req
	if len(sttReq.PCM) != 3200 {
		t.Errorf("STT request PCM length: want 3200, got %d", len(sttReq.PCM))
	}
	if sttReq.Language != "de" {
		t.Errorf("STT request language: want %q, got %q", "de", sttReq.Language)
	}

	if len(mtP.TranslateCalls) != 1 {
		t.Fatalf("MT calls: want 1, got %d", len(mtP.TranslateCalls))
	}
	mtReq := mtP.TranslateCalls[0].Req
	if mtReq.Text != "guten morgen" {
		t.Errorf("MT request text: want %q, got %q", "guten morgen", mtReq.Text)
	}
	if mtReq.SourceLang != "de" || mtReq.TargetLang != "en" {
		t.Errorf("MT request languages: want de→en, got %s→%s", mtReq.SourceLang, mtReq.TargetLang)
	}

	if len(ttsP.SynthesizeCalls) != 1 {
		t.Fatalf("TTS calls: want 1, got %d", len(ttsP.SynthesizeCalls))
	}
	ttsReq := ttsP.SynthesizeCalls[0].Req
	if ttsReq.Text != "good morning" {
		t.Errorf("TTS request text: want %q, got %q", "good morning", ttsReq.Text)
	}
	if ttsReq.Voice.ID != "alloy" {
		t.Errorf("TTS request voice: want %q, got %q", "alloy", ttsReq.Voice.ID)
	}
}

// ─── TestTranslateSegment_SilenceShortCircuits ───────────────────────────────

// TestTranslateSegment_SilenceShortCircuits verifies that a segment the
// recognizer transcribes to whitespace stops the cascade after the Transcribe
// stage: no translation, no synthesis, no error.
func TestTranslateSegment_SilenceShortCircuits(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{
		Result: stt.Result{Text: "   "},
	}
	mtP := &mtmock.Provider{}
	ttsP := &ttsmock.Provider{}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{})

	res, err := e.TranslateSegment(context.Background(), testSegment(), deToEn)
	if err != nil {
		t.Fatalf("TranslateSegment: unexpected error: %v", err)
	}
	if res.Transcript != "" {
		t.Errorf("Transcript: want empty, got %q", res.Transcript)
	}
	if res.Translation != "" {
		t.Errorf("Translation: want empty, got %q", res.Translation)
	}
	if len(mtP.TranslateCalls) != 0 {
		t.Errorf("MT calls: want 0, got %d", len(mtP.TranslateCalls))
	}
	if len(ttsP.SynthesizeCalls) != 0 {
		t.Errorf("TTS calls: want 0, got %d", len(ttsP.SynthesizeCalls))
	}
	if res.Stages.Total <= 0 {
		t.Error("Stages.Total must still be recorded for silent segments")
	}
}

// ─── TestTranslateSegment_GlossaryCorrection ─────────────────────────────────

// TestTranslateSegment_GlossaryCorrection verifies that a configured corrector
// rewrites the transcript before it reaches the translator.
func TestTranslateSegment_GlossaryCorrection(t *testing.T) {
	t.Parallel()

	corrector := glossary.NewCorrector(nil, []glossary.Term{
		{Canonical: "Kubernetes", Variants: []string{"cooper netties"}},
	})

	sttP := &sttmock.Provider{
		Result: stt.Result{Text: "we deploy on cooper netties tomorrow"},
	}
	mtP := &mtmock.Provider{}
	ttsP := &ttsmock.Provider{
		SynthesizeResult: tts.Result{Audio: []byte{0x01}},
	}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{}, turn.WithCorrector(corrector))

	res, err := e.TranslateSegment(context.Background(), testSegment(), deToEn)
	if err != nil {
		t.Fatalf("TranslateSegment: %v", err)
	}

	if !strings.Contains(res.Transcript, "Kubernetes") {
		t.Errorf("Transcript not corrected: %q", res.Transcript)
	}
	if len(mtP.TranslateCalls) != 1 {
		t.Fatal("MT was not called")
	}
	if got := mtP.TranslateCalls[0].Req.Text; !strings.Contains(got, "Kubernetes") {
		t.Errorf("MT received uncorrected text: %q", got)
	}
}

// ─── TestTranslateSegment_StageErrorsCarryStageName ──────────────────────────

// TestTranslateSegment_StageErrorsCarryStageName verifies that a provider
// failure surfaces wrapped with the name of the stage that failed and that
// later stages never run.
func TestTranslateSegment_StageErrorsCarryStageName(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("provider down")

	cases := []struct {
		name      string
		stt       *sttmock.Provider
		mt        *mtmock.Provider
		tts       *ttsmock.Provider
		wantStage string
	}{
		{
			name:      "transcribe failure",
			stt:       &sttmock.Provider{Err: sentinel},
			mt:        &mtmock.Provider{},
			tts:       &ttsmock.Provider{},
			wantStage: "transcribe",
		},
		{
			name:      "translate failure",
			stt:       &sttmock.Provider{Result: stt.Result{Text: "hallo"}},
			mt:        &mtmock.Provider{Err: sentinel},
			tts:       &ttsmock.Provider{},
			wantStage: "translate",
		},
		{
			name:      "synthesize failure",
			stt:       &sttmock.Provider{Result: stt.Result{Text: "hallo"}},
			mt:        &mtmock.Provider{},
			tts:       &ttsmock.Provider{SynthesizeErr: sentinel},
			wantStage: "synthesize",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := turn.New(tc.stt, tc.mt, tc.tts, tts.Voice{})
			_, err := e.TranslateSegment(context.Background(), testSegment(), deToEn)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, sentinel) {
				t.Errorf("error does not wrap the provider error: %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantStage) {
				t.Errorf("error %q does not name stage %q", err, tc.wantStage)
			}
		})
	}
}

// ─── TestTranslateSegment_TargetLanguageRequired ─────────────────────────────

func TestTranslateSegment_TargetLanguageRequired(t *testing.T) {
	t.Parallel()

	e := turn.New(&sttmock.Provider{}, &mtmock.Provider{}, &ttsmock.Provider{}, tts.Voice{})

	_, err := e.TranslateSegment(context.Background(), testSegment(), enginepkg.LangPair{Source: "de"})
	if err == nil {
		t.Fatal("expected error for empty target language")
	}
}

// ─── TestTranslateSegment_ContextWindow ──────────────────────────────────────

// TestTranslateSegment_ContextWindow verifies that completed transcripts feed
// the next turn's translation context and that the window is bounded.
func TestTranslateSegment_ContextWindow(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{
		Results: []stt.Result{
			{Text: "erster satz"},
			{Text: "zweiter satz"},
			{Text: "dritter satz"},
		},
	}
	mtP := &mtmock.Provider{}
	ttsP := &ttsmock.Provider{SynthesizeResult: tts.Result{Audio: []byte{0x01}}}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{}, turn.WithContextDepth(1))

	for i := range 3 {
		if _, err := e.TranslateSegment(context.Background(), testSegment(), deToEn); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	if len(mtP.TranslateCalls) != 3 {
		t.Fatalf("MT calls: want 3, got %d", len(mtP.TranslateCalls))
	}

	// First turn has no context yet.
	if got := mtP.TranslateCalls[0].Req.Context; got != "" {
		t.Errorf("turn 1 context: want empty, got %q", got)
	}
	// Second turn carries the first transcript.
	if got := mtP.TranslateCalls[1].Req.Context; got != "erster satz" {
		t.Errorf("turn 2 context: want %q, got %q", "erster satz", got)
	}
	// Depth 1: third turn carries only the second transcript.
	if got := mtP.TranslateCalls[2].Req.Context; got != "zweiter satz" {
		t.Errorf("turn 3 context: want %q, got %q", "zweiter satz", got)
	}
}

// TestTranslateSegment_ContextDisabled verifies that WithContextDepth(0)
// suppresses context carrying entirely.
func TestTranslateSegment_ContextDisabled(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{Result: stt.Result{Text: "hallo"}}
	mtP := &mtmock.Provider{}
	ttsP := &ttsmock.Provider{SynthesizeResult: tts.Result{Audio: []byte{0x01}}}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{}, turn.WithContextDepth(0))

	for range 2 {
		if _, err := e.TranslateSegment(context.Background(), testSegment(), deToEn); err != nil {
			t.Fatalf("TranslateSegment: %v", err)
		}
	}
	for i, call := range mtP.TranslateCalls {
		if call.Req.Context != "" {
			t.Errorf("turn %d: context should be empty, got %q", i+1, call.Req.Context)
		}
	}
}

// ─── TestReset_ClearsContext ─────────────────────────────────────────────────

func TestReset_ClearsContext(t *testing.T) {
	t.Parallel()

	sttP := &sttmock.Provider{Result: stt.Result{Text: "hallo welt"}}
	mtP := &mtmock.Provider{}
	ttsP := &ttsmock.Provider{SynthesizeResult: tts.Result{Audio: []byte{0x01}}}

	e := turn.New(sttP, mtP, ttsP, tts.Voice{})

	if _, err := e.TranslateSegment(context.Background(), testSegment(), deToEn); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	e.Reset()
	if _, err := e.TranslateSegment(context.Background(), testSegment(), deToEn); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if got := mtP.TranslateCalls[1].Req.Context; got != "" {
		t.Errorf("context after Reset: want empty, got %q", got)
	}
}
