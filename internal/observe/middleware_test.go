package observe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestSurface wraps a ServeMux like the nap HTTP surface does and returns
// the instrumented handler with its metric reader and span exporter.
func newTestSurface(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"state":"idle"}`)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	mux.HandleFunc("GET /artifact", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no recording", http.StatusNotFound)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// durationPoints returns the request duration data points keyed by
// "method path status".
func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) map[string]uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "nap.http.request.duration")
	if met == nil {
		t.Fatal("nap.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	out := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		method, _ := dp.Attributes.Value(attribute.Key("method"))
		path, _ := dp.Attributes.Value(attribute.Key("path"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		key := method.AsString() + " " + path.AsString() + " " + status.Emit()
		out[key] += dp.Count
	}
	return out
}

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	h, reader, _ := newTestSurface(t)

	serve(h, "GET", "/status", nil)
	serve(h, "GET", "/status", nil)
	serve(h, "GET", "/artifact", nil)
	serve(h, "GET", "/random-2", nil)
	serve(h, "GET", "/random-1", nil)

	got := durationPoints(t, reader)
	want := map[string]uint64{
		"GET /status 200":   2,
		"GET /artifact 404": 1,
		"GET other 404":     2,
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("count[%q] = %d, want %d (all: %v)", k, got[k], n, got)
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected series: %v", got)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	h, _, exp := newTestSurface(t)

	serve(h, "GET", "/artifact", nil)
	serve(h, "GET", "/nope", nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	names := []string{spans[0].Name, spans[1].Name}
	if !slices.Equal(names, []string{"HTTP GET /artifact", "HTTP GET /nope"}) {
		t.Errorf("span names = %v", names)
	}

	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status code attribute = %d, want 404", status)
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, _ := newTestSurface(t)

	fresh := serve(h, "GET", "/status", nil)
	if cid := fresh.Header().Get("X-Correlation-ID"); len(cid) != 32 {
		t.Errorf("fresh X-Correlation-ID = %q, want a 32 character trace ID", cid)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	continued := serve(h, "GET", "/status", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})
	if cid := continued.Header().Get("X-Correlation-ID"); cid != traceID {
		t.Errorf("continued X-Correlation-ID = %q, want %q", cid, traceID)
	}
	if tp := continued.Header().Get("Traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("response traceparent = %q, want trace %s", tp, traceID)
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	h, _, _ := newTestSurface(t)
	buf := captureLogs(t, slog.LevelInfo)

	serve(h, "GET", "/healthz", nil)
	if buf.Len() != 0 {
		t.Errorf("healthy probe logged at info: %s", buf.String())
	}

	serve(h, "GET", "/status", nil)
	line := buf.String()
	for _, want := range []string{"request completed", "path=/status", "status=200", "bytes=16"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}
