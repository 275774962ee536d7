package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/voxlate/voxlate/internal/api"
	"github.com/voxlate/voxlate/internal/app"
	"github.com/voxlate/voxlate/internal/arbiter"
	"github.com/voxlate/voxlate/internal/config"
	"github.com/voxlate/voxlate/internal/pipeline"
	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/mt"
	mtmock "github.com/voxlate/voxlate/pkg/provider/mt/mock"
	"github.com/voxlate/voxlate/pkg/provider/stream"
	streammock "github.com/voxlate/voxlate/pkg/provider/stream/mock"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	sttmock "github.com/voxlate/voxlate/pkg/provider/stt/mock"
	"github.com/voxlate/voxlate/pkg/provider/tts"
	ttsmock "github.com/voxlate/voxlate/pkg/provider/tts/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

type testProviders struct {
	stream *streammock.Provider
	stt    *sttmock.Provider
	mt     *mtmock.Provider
	tts    *ttsmock.Provider
}

// newMockProviders returns a full provider set. The STT mock hears "wie geht
// es dir" in every segment and the MT mock translates everything to "how are
// you".
func newMockProviders() *testProviders {
	return &testProviders{
		stream: &streammock.Provider{
			Session: &streammock.Session{EventsCh: make(chan stream.Event, 64)},
		},
		stt: &sttmock.Provider{Result: stt.Result{Text: "wie geht es dir", Language: "de"}},
		mt:  &mtmock.Provider{Result: mt.Result{Text: "how are you"}},
		tts: &ttsmock.Provider{
			SynthesizeResult: tts.Result{Audio: []byte{0x01}, Format: audio.PipelineFormat},
		},
	}
}

// providers bundles the mocks into the slot struct New and NewSessionManager
// expect.
func (tp *testProviders) providers() *app.Providers {
	return &app.Providers{
		Stream: tp.stream,
		STT:    tp.stt,
		MT:     tp.mt,
		TTS:    tp.tts,
	}
}

// newTestManager builds a manager around mock providers.
func newTestManager(t *testing.T, cfg *config.Config) (*app.SessionManager, *testProviders) {
	t.Helper()
	tp := newMockProviders()
	if cfg == nil {
		cfg = testConfig()
	}
	m := app.NewSessionManager(app.SessionManagerConfig{
		Config:    cfg,
		Providers: tp.providers(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, tp
}

// testConfig starts sessions turn-based with a fast detector so tests can
// push speech through without real-time waits.
func testConfig() *config.Config {
	return &config.Config{
		Arbiter: config.ArbiterConfig{InitialMode: arbiter.ModeTurnBased},
		VAD: config.VADConfig{
			FrameDurationMs:   10,
			HistorySize:       4,
			SpeechStartFrames: 2,
			SpeechEndFrames:   3,
			MinSpeechMs:       30,
		},
	}
}

func mustCreate(t *testing.T, m *app.SessionManager, req api.CreateSessionRequest) api.SessionInfo {
	t.Helper()
	if req.TargetLang == "" {
		req.TargetLang = "en"
	}
	info, err := m.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: unexpected error: %v", err)
	}
	return info
}

const frameSamples = 160 // 10 ms at 16 kHz

func silencePCM() []byte {
	samples := make([]int16, frameSamples)
	for i := range samples {
		samples[i] = 33
	}
	return audio.SamplesToBytes(samples)
}

func speechPCM() []byte {
	samples := make([]int16, frameSamples)
	for i := range samples {
		if (i/8)%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return audio.SamplesToBytes(samples)
}

func waitSessionEvent(t *testing.T, events <-chan api.SessionEvent, kind pipeline.Kind) api.SessionEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event feed closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// waitClosed drains events until the channel closes.
func waitClosed(t *testing.T, events <-chan api.SessionEvent) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event feed never closed")
		}
	}
}

// ─── Create ──────────────────────────────────────────────────────────────────

func TestCreate_ReturnsDescriptor(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{SourceLang: "de", TargetLang: "en", Voice: "alloy"})

	if info.ID == "" {
		t.Fatal("descriptor has no session ID")
	}
	if info.SourceLang != "de" || info.TargetLang != "en" || info.Voice != "alloy" {
		t.Errorf("descriptor = %+v", info)
	}
	if info.CreatedAt.IsZero() {
		t.Error("descriptor has no creation time")
	}
	if info.Status.Mode != arbiter.ModeTurnBased {
		t.Errorf("initial mode = %s, want turn-based", info.Status.Mode)
	}

	second := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "fr"})
	if second.ID == info.ID {
		t.Error("two sessions share one ID")
	}
}

func TestCreate_RequiresCascadeProviders(t *testing.T) {
	t.Parallel()

	m := app.NewSessionManager(app.SessionManagerConfig{
		Config:    testConfig(),
		Providers: &app.Providers{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = m.Close() })

	_, err := m.Create(context.Background(), api.CreateSessionRequest{TargetLang: "en"})
	if err == nil || !strings.Contains(err.Error(), "cascade providers") {
		t.Fatalf("Create without providers returned %v", err)
	}
}

func TestCreate_RejectsMissingTargetLang(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	_, err := m.Create(context.Background(), api.CreateSessionRequest{SourceLang: "de"})
	if err == nil || !strings.Contains(err.Error(), "create session") {
		t.Fatalf("Create without target language returned %v", err)
	}
}

func TestCreate_ModeOverride(t *testing.T) {
	t.Parallel()

	// Config default is turn-based; the request asks for streaming.
	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{
		TargetLang: "en",
		Mode:       string(arbiter.ModeStreaming),
	})
	if info.Status.Mode != arbiter.ModeStreaming {
		t.Errorf("mode = %s, want streaming override", info.Status.Mode)
	}
}

// ─── Get / List / Stop / Feed ────────────────────────────────────────────────

func TestGet_UnknownSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	if _, err := m.Get("nope"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Get(nope) = %v, want ErrNotFound", err)
	}
}

func TestList_OldestFirst(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	first := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "en"})
	time.Sleep(2 * time.Millisecond)
	second := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "fr"})

	infos := m.List()
	if len(infos) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(infos))
	}
	if infos[0].ID != first.ID || infos[1].ID != second.ID {
		t.Errorf("List order = [%s %s], want oldest first", infos[0].ID, infos[1].ID)
	}
}

func TestStop_RemovesSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "en"})

	if err := m.Stop(info.ID); err != nil {
		t.Fatalf("Stop: unexpected error: %v", err)
	}
	if _, err := m.Get(info.ID); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Get after stop = %v, want ErrNotFound", err)
	}
	if err := m.Stop(info.ID); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("second Stop = %v, want ErrNotFound", err)
	}
	if err := m.Feed(info.ID, speechPCM()); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Feed after stop = %v, want ErrNotFound", err)
	}
}

func TestFeed_RoutesToSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "en"})

	if err := m.Feed(info.ID, speechPCM()); err != nil {
		t.Errorf("Feed(live session) = %v, want nil", err)
	}
	if err := m.Feed("nope", speechPCM()); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Feed(unknown) = %v, want ErrNotFound", err)
	}
}

func TestFeed_NormalizesDeclaredClientFormat(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{
		TargetLang: "en",
		SampleRate: 8000,
		Channels:   2,
	})

	// 10ms of 8kHz stereo: 80 sample groups, resampled and downmixed on
	// ingest to one 16kHz mono detector frame.
	chunk := make([]int16, 80*2)
	for i := range chunk {
		chunk[i] = 500
	}
	if err := m.Feed(info.ID, audio.SamplesToBytes(chunk)); err != nil {
		t.Errorf("Feed(8kHz stereo chunk) = %v, want nil", err)
	}

	// A misaligned chunk is dropped by the converter, not an error.
	if err := m.Feed(info.ID, []byte{1, 2, 3}); err != nil {
		t.Errorf("Feed(misaligned chunk) = %v, want nil", err)
	}
}

// ─── Event flow ──────────────────────────────────────────────────────────────

func TestSession_TurnFlowDeliversEvents(t *testing.T) {
	t.Parallel()

	m, tp := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{SourceLang: "de", TargetLang: "en"})

	events, cancel, err := m.Subscribe(info.ID)
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := m.Feed(info.ID, silencePCM()); err != nil {
			t.Fatalf("Feed silence: %v", err)
		}
	}
	for i := 0; i < 8; i++ {
		if err := m.Feed(info.ID, speechPCM()); err != nil {
			t.Fatalf("Feed speech: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if err := m.Feed(info.ID, silencePCM()); err != nil {
			t.Fatalf("Feed silence: %v", err)
		}
	}

	start := waitSessionEvent(t, events, pipeline.KindSpeechStart)
	if start.SessionID != info.ID {
		t.Errorf("event session = %q, want %q", start.SessionID, info.ID)
	}
	turn := waitSessionEvent(t, events, pipeline.KindTurnCompleted)
	if turn.Transcript != "wie geht es dir" || turn.Text != "how are you" {
		t.Errorf("turn.completed = %q -> %q", turn.Transcript, turn.Text)
	}

	if calls := len(tp.stt.TranscribeCalls); calls != 1 {
		t.Errorf("STT got %d calls, want 1", calls)
	}
}

func TestSubscribe_UnknownSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	if _, _, err := m.Subscribe("nope"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Subscribe(nope) = %v, want ErrNotFound", err)
	}
}

func TestStop_ClosesScopedSubscriptions(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	info := mustCreate(t, m, api.CreateSessionRequest{TargetLang: "en"})

	events, cancel, err := m.Subscribe(info.ID)
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	defer cancel()

	if err := m.Stop(info.ID); err != nil {
		t.Fatalf("Stop: unexpected error: %v", err)
	}
	waitClosed(t, events)
}

// ─── Close ───────────────────────────────────────────────────────────────────

func TestClose_StopsEverything(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, nil)
	mustCreate(t, m, api.CreateSessionRequest{TargetLang: "en"})
	mustCreate(t, m, api.CreateSessionRequest{TargetLang: "fr"})

	all, cancel, err := m.Subscribe("")
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	defer cancel()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}
	if got := m.List(); len(got) != 0 {
		t.Errorf("List after close has %d sessions, want 0", len(got))
	}
	if _, err := m.Create(context.Background(), api.CreateSessionRequest{TargetLang: "en"}); !errors.Is(err, app.ErrManagerClosed) {
		t.Errorf("Create after close = %v, want ErrManagerClosed", err)
	}
	waitClosed(t, all)

	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
