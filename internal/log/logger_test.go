package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentIngest})
	l.With(FieldBatchID, "b1").Info("File ingested", FieldFile, "s.txt")

	out := buf.String()
	for _, want := range []string{"component=ingest", "batch_id=b1", "file=s.txt"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	l.WithComponent(ComponentStorage).Debug("x")
	if out := buf.String(); strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=storage") {
		t.Fatalf("component should be replaced, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMiddlewareInjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	var fromCtx *Logger
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cashflow?class=opex", nil))

	if fromCtx == nil || fromCtx.Component() != ComponentHTTP {
		t.Fatalf("expected http logger in context")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
	out := buf.String()
	if !strings.Contains(out, "status_code=418") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("unexpected access log %q", out)
	}
}
