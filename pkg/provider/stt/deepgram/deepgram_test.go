package deepgram_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	"github.com/voxlate/voxlate/pkg/provider/stt/deepgram"
)

// recordedRequest captures what the mock Deepgram server received.
type recordedRequest struct {
	Query       url.Values
	AuthHeader  string
	ContentType string
	Body        []byte
}

// listenResponse builds the minimal pre-recorded response JSON.
func listenResponse(transcript, detectedLang string) string {
	type alt struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	}
	resp := map[string]any{
		"results": map[string]any{
			"channels": []map[string]any{{
				"detected_language": detectedLang,
				"alternatives":      []alt{{Transcript: transcript, Confidence: 0.98}},
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newMockServer(t *testing.T, response string, status int, rec *recordedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.Query = r.URL.Query()
			rec.AuthHeader = r.Header.Get("Authorization")
			rec.ContentType = r.Header.Get("Content-Type")
			rec.Body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, response)
	}))
}

func testRequest() stt.Request {
	return stt.Request{
		PCM:      make([]byte, 3200), // 100 ms at 16 kHz mono
		Format:   audio.Format{SampleRate: 16000, Channels: 1},
		Language: "en",
	}
}

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := deepgram.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe_UploadsWAVAndParsesResponse(t *testing.T) {
	var rec recordedRequest
	srv := newMockServer(t, listenResponse("guten tag", ""), http.StatusOK, &rec)
	defer srv.Close()

	p, err := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL), deepgram.WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "guten tag" {
		t.Errorf("text: got %q", res.Text)
	}
	if res.Language != "en" {
		t.Errorf("language: got %q, want requested language echoed", res.Language)
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("duration: got %v, want 100ms", res.Duration)
	}

	if rec.AuthHeader != "Token dg-key" {
		t.Errorf("auth header: got %q", rec.AuthHeader)
	}
	if rec.ContentType != "audio/wav" {
		t.Errorf("content type: got %q", rec.ContentType)
	}
	if got := rec.Query.Get("model"); got != "base" {
		t.Errorf("model param: got %q", got)
	}
	if got := rec.Query.Get("language"); got != "en" {
		t.Errorf("language param: got %q", got)
	}
	if rec.Query.Get("detect_language") != "" {
		t.Error("detect_language should be unset when a language is requested")
	}

	pcm, f, err := audio.DecodeWAV(rec.Body)
	if err != nil {
		t.Fatalf("uploaded body is not WAV: %v", err)
	}
	if len(pcm) != 3200 || f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("uploaded audio: %d bytes %+v", len(pcm), f)
	}
}

func TestTranscribe_DetectsLanguageWhenUnset(t *testing.T) {
	var rec recordedRequest
	srv := newMockServer(t, listenResponse("bonjour", "fr"), http.StatusOK, &rec)
	defer srv.Close()

	p, _ := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))

	req := testRequest()
	req.Language = ""
	res, err := p.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if rec.Query.Get("detect_language") != "true" {
		t.Error("expected detect_language=true when no language requested")
	}
	if res.Language != "fr" {
		t.Errorf("language: got %q, want detected fr", res.Language)
	}
}

func TestTranscribe_PromptBecomesKeywords(t *testing.T) {
	var rec recordedRequest
	srv := newMockServer(t, listenResponse("ok", ""), http.StatusOK, &rec)
	defer srv.Close()

	p, _ := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))

	req := testRequest()
	req.Prompt = "Kubernetes, gRPC,  , latency budget"
	if _, err := p.Transcribe(context.Background(), req); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	got := rec.Query["keywords"]
	want := []string{"Kubernetes", "gRPC", "latency budget"}
	if len(got) != len(want) {
		t.Fatalf("keywords: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTranscribe_EmptyChannels_ReturnsEmptyResult(t *testing.T) {
	srv := newMockServer(t, `{"results":{"channels":[]}}`, http.StatusOK, nil)
	defer srv.Close()

	p, _ := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))

	res, err := p.Transcribe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("expected empty text, got %q", res.Text)
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	srv := newMockServer(t, `{"err_msg":"bad request"}`, http.StatusBadRequest, nil)
	defer srv.Close()

	p, _ := deepgram.New("dg-key", deepgram.WithBaseURL(srv.URL))

	if _, err := p.Transcribe(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	t.Parallel()
	p, _ := deepgram.New("dg-key")
	_, err := p.Transcribe(context.Background(), stt.Request{
		Format: audio.Format{SampleRate: 16000, Channels: 1},
	})
	if err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_InvalidFormat_ReturnsError(t *testing.T) {
	t.Parallel()
	p, _ := deepgram.New("dg-key")
	_, err := p.Transcribe(context.Background(), stt.Request{
		PCM:    make([]byte, 320),
		Format: audio.Format{SampleRate: 0, Channels: 1},
	})
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestName_ReturnsDeepgram(t *testing.T) {
	t.Parallel()
	p, _ := deepgram.New("dg-key")
	if p.Name() != "deepgram" {
		t.Errorf("Name: got %q", p.Name())
	}
}
