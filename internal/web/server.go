package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/dyosync/internal/domain"
	"github.com/vadiminshakov/dyosync/internal/observability"
)

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
}

type snapshotSubscriber interface {
	Subscribe(account string) chan domain.BalanceSnapshot
	Unsubscribe(ch chan domain.BalanceSnapshot)
}

type sessionState interface {
	LoggedIn() bool
	SetToken(token string) error
}

// Deps are the collaborators served over HTTP. Nil members disable their routes.
type Deps struct {
	Syncers  Syncers
	Store    balanceSnapshotReader
	Live     snapshotSubscriber
	Session  sessionState
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Platform PlatformAPI
	// OnLogin runs after a new token was stored, e.g. to restart pollers.
	OnLogin func()
	// OnUnauthorized receives 401s from proxied platform calls.
	OnUnauthorized func(op string)
}

// Server exposes the dashboard, a JSON API and SSE streams.
type Server struct {
	Addr string
	deps Deps

	mu            sync.Mutex
	loginRequired bool
	loginReason   string
}

// NewServer creates a new web server instance.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{Addr: addr, deps: deps}
}

// RedirectToLogin switches the dashboard to the login view.
func (s *Server) RedirectToLogin(reason string) {
	s.mu.Lock()
	s.loginRequired = true
	s.loginReason = reason
	s.mu.Unlock()

	s.deps.Logger.Warn("login required", zap.String("reason", reason))
}

func (s *Server) loginState() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginRequired, s.loginReason
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	mux.HandleFunc("GET /api/accounts/{account}/balance", s.handleBalance)
	mux.HandleFunc("GET /api/accounts/{account}/positions", s.handlePositions)
	mux.HandleFunc("POST /api/accounts/{account}/stake", s.handleStake)
	mux.HandleFunc("POST /api/accounts/{account}/unstake", s.handleUnstake)
	mux.HandleFunc("POST /api/accounts/{account}/claim", s.handleClaim)
	if s.deps.Platform != nil {
		mux.HandleFunc("GET /api/profile", s.handleProfile)
		mux.HandleFunc("PUT /api/profile", s.handleUpdateProfile)
		mux.HandleFunc("POST /api/profile/avatar", s.handleAvatar)
		mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
		mux.HandleFunc("GET /api/search", s.handleSearch)
	}
	mux.HandleFunc("GET /balance/stream", s.handleBalanceStream)
	mux.HandleFunc("GET /balance/live", s.handleLiveStream)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.deps.Logger.Info("dashboard listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with ACME certificates and answers HTTP-01
// challenges on :80.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("acme server", zap.Error(err))
		}
	}()

	s.deps.Logger.Info("dashboard listening with auto TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen tls")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
