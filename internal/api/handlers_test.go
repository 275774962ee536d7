package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxlate/voxlate/internal/api"
	"github.com/voxlate/voxlate/internal/health"
)

// fakeSessions is an in-memory Sessions implementation for handler tests.
type fakeSessions struct {
	mu        sync.Mutex
	infos     map[string]api.SessionInfo
	fed       [][]byte
	seq       int
	cancels   int
	createErr error

	// events backs every Subscribe call; tests publish into it.
	events chan api.SessionEvent
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		infos:  map[string]api.SessionInfo{},
		events: make(chan api.SessionEvent, 8),
	}
}

func (f *fakeSessions) Create(_ context.Context, req api.CreateSessionRequest) (api.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return api.SessionInfo{}, f.createErr
	}
	f.seq++
	info := api.SessionInfo{
		ID:         fmt.Sprintf("s-%d", f.seq),
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Voice:      req.Voice,
		CreatedAt:  time.Now(),
	}
	f.infos[info.ID] = info
	return info, nil
}

func (f *fakeSessions) Get(id string) (api.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[id]
	if !ok {
		return api.SessionInfo{}, api.ErrNotFound
	}
	return info, nil
}

func (f *fakeSessions) List() []api.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.SessionInfo, 0, len(f.infos))
	for _, info := range f.infos {
		out = append(out, info)
	}
	return out
}

func (f *fakeSessions) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.infos[id]; !ok {
		return api.ErrNotFound
	}
	delete(f.infos, id)
	return nil
}

func (f *fakeSessions) Feed(id string, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.infos[id]; !ok {
		return api.ErrNotFound
	}
	f.fed = append(f.fed, append([]byte(nil), pcm...))
	return nil
}

func (f *fakeSessions) Subscribe(id string) (<-chan api.SessionEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != "" {
		if _, ok := f.infos[id]; !ok {
			return nil, nil, api.ErrNotFound
		}
	}
	cancel := func() {
		f.mu.Lock()
		f.cancels++
		f.mu.Unlock()
	}
	return f.events, cancel, nil
}

func (f *fakeSessions) fedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fed)
}

// seed inserts a session directly, bypassing Create.
func (f *fakeSessions) seed(info api.SessionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos[info.ID] = info
}

func newTestServer(t *testing.T, sessions api.Sessions) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := api.NewRouter(api.Config{Service: "voxlate", Version: "test"}, sessions, health.NewRegistry(), nil, logger)
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestCreateSession_ReturnsDescriptor(t *testing.T) {
	t.Parallel()

	fake := newFakeSessions()
	srv := newTestServer(t, fake)

	resp := postJSON(t, srv.URL+"/v1/sessions", `{"source_lang":"de","target_lang":"en","voice":"alloy"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	info := decodeBody[api.SessionInfo](t, resp)
	if info.ID == "" {
		t.Error("created session has empty ID")
	}
	if info.SourceLang != "de" || info.TargetLang != "en" || info.Voice != "alloy" {
		t.Errorf("descriptor = %+v, want de/en/alloy", info)
	}
	if _, err := fake.Get(info.ID); err != nil {
		t.Errorf("session %s not registered with the manager: %v", info.ID, err)
	}
}

func TestCreateSession_RequiresTargetLang(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp := postJSON(t, srv.URL+"/v1/sessions", `{"source_lang":"de"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "target_lang") {
		t.Errorf("error = %q, want mention of target_lang", body["error"])
	}
}

func TestCreateSession_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp := postJSON(t, srv.URL+"/v1/sessions", `{"target_lang":"en","bogus":true}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateSession_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp := postJSON(t, srv.URL+"/v1/sessions", `{"target_lang":"en","mode":"hybrid"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "mode") {
		t.Errorf("error = %q, want mention of mode", body["error"])
	}
}

func TestCreateSession_RejectsInvalidAudioFormat(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"sample rate too low", `{"target_lang":"en","sample_rate":4000}`, "sample_rate"},
		{"too many channels", `{"target_lang":"en","channels":6}`, "channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/sessions", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			body := decodeBody[map[string]string](t, resp)
			if !strings.Contains(body["error"], tt.want) {
				t.Errorf("error = %q, want mention of %s", body["error"], tt.want)
			}
		})
	}
}

func TestCreateSession_ManagerError(t *testing.T) {
	t.Parallel()

	fake := newFakeSessions()
	fake.createErr = errors.New("no stream provider configured")
	srv := newTestServer(t, fake)

	resp := postJSON(t, srv.URL+"/v1/sessions", `{"target_lang":"en","mode":"streaming"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !strings.Contains(body["error"], "no stream provider") {
		t.Errorf("error = %q, want manager error passed through", body["error"])
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	fake := newFakeSessions()
	fake.seed(api.SessionInfo{ID: "s-1", TargetLang: "fr"})
	srv := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/v1/sessions/s-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	info := decodeBody[api.SessionInfo](t, resp)
	if info.ID != "s-1" || info.TargetLang != "fr" {
		t.Errorf("descriptor = %+v, want s-1/fr", info)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp, err := http.Get(srv.URL + "/v1/sessions/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["error"] != "session not found" {
		t.Errorf("error = %q, want \"session not found\"", body["error"])
	}
}

func TestStopSession(t *testing.T) {
	t.Parallel()

	fake := newFakeSessions()
	fake.seed(api.SessionInfo{ID: "s-1", TargetLang: "en"})
	srv := newTestServer(t, fake)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/s-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("first delete status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestListSessions_EmptyIsArray(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(raw)); got != "[]" {
		t.Errorf("empty list encodes as %q, want []", got)
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	fake := newFakeSessions()
	fake.seed(api.SessionInfo{ID: "s-1", TargetLang: "en"})
	fake.seed(api.SessionInfo{ID: "s-2", TargetLang: "ja"})
	srv := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	status := decodeBody[api.StatusResponse](t, resp)
	if status.Service != "voxlate" || status.Version != "test" {
		t.Errorf("identity = %s/%s, want voxlate/test", status.Service, status.Version)
	}
	if len(status.Sessions) != 2 {
		t.Errorf("status reports %d sessions, want 2", len(status.Sessions))
	}
	if status.UptimeS < 0 {
		t.Errorf("uptime_s = %d, want >= 0", status.UptimeS)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeSessions())

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Error("metrics exposition is empty")
	}
}
