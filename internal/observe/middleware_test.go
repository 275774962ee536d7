package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newMiddlewareHarness installs in-memory global OTel providers (restored on
// cleanup) and returns the instruments the assertions read.
func newMiddlewareHarness(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	origProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origProp)
	})

	return m, reader, exp
}

// serveThroughChi routes one request through a chi router carrying the
// middleware, the way internal/api mounts it.
func serveThroughChi(m *Metrics, method, pattern, url string, h http.HandlerFunc) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Use(Middleware(m))
	router.Method(method, pattern, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, url, nil))
	return rec
}

func TestMiddleware_CorrelationIDReachesHandlerAndResponse(t *testing.T) {
	m, _, _ := newMiddlewareHarness(t)

	var cid string
	rec := serveThroughChi(m, "GET", "/test", "/test", func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if cid == "" {
		t.Fatal("handler saw no correlation ID")
	}
	if len(cid) != 32 {
		t.Errorf("correlation ID length = %d, want 32 (hex trace ID)", len(cid))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, cid)
	}
}

func TestMiddleware_SpanUsesRoutePattern(t *testing.T) {
	m, _, exp := newMiddlewareHarness(t)

	serveThroughChi(m, "GET", "/v1/sessions/{id}", "/v1/sessions/abc-123", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	if want := "HTTP GET /v1/sessions/{id}"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
}

func TestMiddleware_MetricUsesRoutePattern(t *testing.T) {
	m, reader, _ := newMiddlewareHarness(t)

	serveThroughChi(m, "GET", "/v1/sessions/{id}", "/v1/sessions/abc-123", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxlate.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, route string
	for _, kv := range dp.Attributes.ToSlice() {
		switch string(kv.Key) {
		case "method":
			method = kv.Value.AsString()
		case "route":
			route = kv.Value.AsString()
		}
	}
	if method != "GET" {
		t.Errorf("method attribute = %q, want GET", method)
	}
	if route != "/v1/sessions/{id}" {
		t.Errorf("route attribute = %q, want the pattern, not the raw URL", route)
	}
}

func TestMiddleware_UnroutedRequestFallsBackToPath(t *testing.T) {
	m, _, exp := newMiddlewareHarness(t)

	mw := Middleware(m)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/bare", nil))

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	if want := "HTTP GET /bare"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	m, _, exp := newMiddlewareHarness(t)

	rec := serveThroughChi(m, "GET", "/missing", "/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("response status = %d, want 404", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no span recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddleware_JoinsIncomingTraceContext(t *testing.T) {
	m, _, _ := newMiddlewareHarness(t)

	router := chi.NewRouter()
	router.Use(Middleware(m))
	var cid string
	router.Get("/propagate", func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/propagate", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	const wantTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	if cid != wantTrace {
		t.Errorf("correlation ID = %q, want trace ID from traceparent", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != wantTrace {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, wantTrace)
	}
}
