// Package server exposes the HTTP API: a JWT-scoped user surface for rules,
// occurrences, settings and push subscriptions, a secret-guarded machine
// route that runs the reminder dispatcher, and a health probe.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"paycycle/internal/eventbus"
	"paycycle/internal/lifecycle"
	"paycycle/internal/reminder"
	"paycycle/internal/rules"
	"paycycle/internal/runtime/supervisor"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// Config sizes the HTTP server. Addr and the secrets require a restart to
// change; zero timeouts fall back to defaults.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration // default 10s
	WriteTimeout    time.Duration // default 60s; bounds a synchronous dispatch run
	IdleTimeout     time.Duration // default 120s
	ShutdownTimeout time.Duration // default 10s
	JWTSecret       string
	DispatchSecret  string // empty disables POST /api/dispatch with 503
}

// Deps are the services the handlers call into. Counters is optional and
// feeds the health probe; Bus, when set, carries store fault events.
type Deps struct {
	Rules      *rules.Service
	Lifecycle  *lifecycle.Service
	Dispatcher *reminder.Dispatcher
	Store      storage.Store
	Bus        eventbus.Bus
	Counters   func() supervisor.Counters
}

type Service struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	mu  sync.Mutex
	srv *http.Server
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Service{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "http"))}
}

// Handler builds the full route tree. Exposed for handler tests.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.NotFoundHandler = s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "not_found", "no such route", "")
	}))
	r.MethodNotAllowedHandler = s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", "")
	}))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Machine surface, guarded by the dispatch secret. Registered before the
	// JWT subrouter so it wins the match for /api/dispatch.
	machine := r.PathPrefix("/api/dispatch").Subrouter()
	machine.Use(s.requireDispatchSecret)
	machine.HandleFunc("", s.handleDispatch).Methods(http.MethodPost)

	// User surface, JWT bearer auth.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireJWT)
	api.HandleFunc("/rules", s.handleRuleCreate).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRuleList).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.handleRuleGet).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.handleRulePatch).Methods(http.MethodPatch)
	api.HandleFunc("/rules/{id}", s.handleRuleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/occurrences", s.handleOccurrenceList).Methods(http.MethodGet)
	api.HandleFunc("/occurrences/{id}/{action}", s.handleOccurrenceAction).Methods(http.MethodPost)
	api.HandleFunc("/settings", s.handleSettingsGet).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettingsPut).Methods(http.MethodPut)
	api.HandleFunc("/push/subscriptions", s.handleSubscriptionRegister).Methods(http.MethodPost)
	api.HandleFunc("/push/subscriptions/{id}", s.handleSubscriptionDelete).Methods(http.MethodDelete)

	return r
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop drains in-flight requests, bounded by ctx or the configured shutdown
// timeout, whichever is tighter.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		_ = srv.Close()
		return
	}
	s.log.Info("http server stopped")
}
