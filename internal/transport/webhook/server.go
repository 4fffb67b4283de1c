// Package webhook exposes the inbound HTTP endpoint that receives tracking
// system change events and drives them through the relay pipeline.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shotrelay/internal/relay"
	logx "shotrelay/pkg/logx"
)

// Delivery outcomes never leak handler errors to the caller; the response is
// the outcome name plus the mapped status code.
const maxBodyBytes = 1 << 20

type Config struct {
	Addr string
	// Path is the event endpoint, default "/webhook".
	Path string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Inbound request limiting. Zero RequestsPerSecond disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// Handler is the relay entrypoint the server drives.
type Handler interface {
	Handle(ctx context.Context, env relay.Envelope) (relay.Outcome, error)
}

type Server struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	handler Handler
	limiter *rate.Limiter

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, handler Handler, log logx.Logger) *Server {
	s := &Server{cfg: cfg, handler: handler, log: log}
	s.limiter = newLimiter(cfg)
	return s
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond) + 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// Reconfigure applies the inbound rate limit from a fresh config. Address or
// timeout changes require a restart and are ignored here.
func (s *Server) Reconfigure(cfg Config) {
	s.mu.Lock()
	s.cfg.RequestsPerSecond = cfg.RequestsPerSecond
	s.cfg.Burst = cfg.Burst
	s.limiter = newLimiter(cfg)
	s.mu.Unlock()
}

// Start is idempotent. The server runs until Stop or a listener error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8484"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("webhook server exited", logx.Err(err))
		}
	}()

	s.log.Info("webhook server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("webhook server stopped")
	return err
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) routes() http.Handler {
	path := strings.TrimSpace(s.cfg.Path)
	if path == "" {
		path = "/webhook"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST "+path, s.handleEvent)
	return s.recoverPanic(mux)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	if limiter != nil && !limiter.Allow() {
		s.log.Warn("inbound request rate limited", logx.String("remote", r.RemoteAddr))
		writeOutcome(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, relay.OutcomeRejected.String())
		return
	}

	env, err := relay.ParseEnvelope(body)
	if err != nil {
		s.log.Warn("malformed event payload", logx.Err(err), logx.String("remote", r.RemoteAddr))
		writeOutcome(w, http.StatusBadRequest, relay.OutcomeRejected.String())
		return
	}

	// Detail stays in the logs; the sender only needs the outcome.
	out, err := s.handler.Handle(r.Context(), env)
	if err != nil {
		s.log.Debug("event handling finished with error", logx.Err(err))
	}
	writeOutcome(w, statusForOutcome(out), out.String())
}

// statusForOutcome is the single place the outcome-to-status mapping lives.
func statusForOutcome(out relay.Outcome) int {
	switch out {
	case relay.OutcomeDelivered, relay.OutcomeIgnored:
		return http.StatusOK
	case relay.OutcomeRejected:
		return http.StatusBadRequest
	case relay.OutcomeNotFound, relay.OutcomeNoRecipients:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeOutcome(w http.ResponseWriter, status int, outcome string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"outcome": outcome})
}

// recoverPanic turns a handler panic into a 500 instead of killing the
// connection-serving goroutine.
func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic while handling request",
					logx.Any("panic", rec), logx.String("path", r.URL.Path),
					logx.Stack(string(debug.Stack())))
				writeOutcome(w, http.StatusInternalServerError, "error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
