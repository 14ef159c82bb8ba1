package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "relaybot/internal/runtime/supervisor"
	logx "relaybot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9464"

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	srv      *http.Server
	addr     string
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Addr is the bound listen address while the server runs.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		// If stopping, wait for it to finish before restarting.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return
			}
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		s.sup = rtsup.New(ctx,
			rtsup.WithLogger(s.log),
			// ops is optional observability; never hard-kill the app.
			rtsup.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		// Run the HTTP server under a restart loop so it self-heals.
		sup.GoRestart("ops.http", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	sup := s.sup
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv = nil
		s.addr = ""
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("ops server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	deps := s.deps
	s.mu.Unlock()

	if !cur.Enabled {
		return context.Canceled
	}
	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}

	// Safety: prevent accidental public exposure without auth.
	if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("ops server refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("ops server refused to start: insecure bind")
	}
	if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("ops server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("ops listen failed", logx.String("addr", addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:           NewRouter(cur, deps, s.log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cur.ReadTimeout,
		WriteTimeout:      cur.WriteTimeout,
		IdleTimeout:       cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	// Ensure the server is stopped when the supervisor context is cancelled.
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
		logx.Bool("pprof", cur.Pprof),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.addr = ""
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
