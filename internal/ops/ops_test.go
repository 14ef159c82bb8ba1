package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "relaybot/pkg/logx"
)

func serve(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterEndpoints(t *testing.T) {
	t.Parallel()
	ready := false
	h := NewRouter(Config{Pprof: true}, Deps{
		Status: func() any { return map[string]int{"processed": 3} },
		Ready:  func() bool { return ready },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("relaybot_up 1\n"))
		}),
	}, logx.Nop())

	if rec := serve(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz before ready = %d", rec.Code)
	}
	ready = true
	if rec := serve(t, h, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("/readyz = %d", rec.Code)
	}

	rec := serve(t, h, http.MethodGet, "/status", nil)
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got["processed"] != 3 {
		t.Fatalf("/status = %q (%v)", rec.Body.String(), err)
	}
	if rec := serve(t, h, http.MethodGet, "/metrics", nil); rec.Body.String() != "relaybot_up 1\n" {
		t.Fatalf("/metrics = %q", rec.Body.String())
	}
	if rec := serve(t, h, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("/debug/pprof/ = %d", rec.Code)
	}
}

func TestRouterWithoutPprof(t *testing.T) {
	t.Parallel()
	h := NewRouter(Config{}, Deps{}, logx.Nop())
	if rec := serve(t, h, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("/debug/pprof/ = %d, want 404", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/status", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("/status = %d, want 404", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	h := NewRouter(Config{Token: "s3cret"}, Deps{}, logx.Nop())
	tests := []struct {
		name   string
		target string
		header http.Header
		want   int
	}{
		{name: "missing", target: "/healthz", want: http.StatusUnauthorized},
		{name: "query", target: "/healthz?token=s3cret", want: http.StatusOK},
		{name: "bad query", target: "/healthz?token=nope", want: http.StatusUnauthorized},
		{name: "header", target: "/healthz", header: http.Header{"Authorization": {"Bearer s3cret"}}, want: http.StatusOK},
		{name: "bad header", target: "/healthz", header: http.Header{"Authorization": {"Basic s3cret"}}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(t, h, http.MethodGet, tt.target, tt.header); rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServiceServesAndStops(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)

	var addr string
	for addr == "" && ctx.Err() == nil {
		addr = s.Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server did not bind")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatal("address still set after Stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"garbage":        false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
