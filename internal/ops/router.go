package ops

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "relaybot/pkg/logx"
)

// Deps are the read-only views the server exposes. Nil members disable
// their endpoint.
type Deps struct {
	// Status returns a JSON-serializable snapshot for GET /status.
	Status func() any
	// Ready reports whether the relay loop is consuming events.
	Ready   func() bool
	Metrics http.Handler
}

func NewRouter(cfg Config, d Deps, log logx.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(bearerAuth(cfg.Token))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if d.Ready != nil && !d.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	if d.Status != nil {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, d.Status())
		})
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// bearerAuth accepts either "Authorization: Bearer <token>" or "?token=<token>".
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("ops request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
