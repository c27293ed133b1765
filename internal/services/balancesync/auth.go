package balancesync

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/observability"
)

// DefaultLoginRedirectDelay is how long the "session expired" message stays
// visible before the login view takes over.
const DefaultLoginRedirectDelay = 2 * time.Second

// LoginRedirector sends the user to the login view.
type LoginRedirector interface {
	RedirectToLogin(reason string)
}

// LoginRedirectFunc adapts a function to LoginRedirector.
type LoginRedirectFunc func(reason string)

func (f LoginRedirectFunc) RedirectToLogin(reason string) { f(reason) }

type credentials interface {
	ClearToken() error
}

// AuthGuard is the single place that reacts to an expired session. Every syncer
// shares one guard, so a burst of 401s produces one redirect.
type AuthGuard struct {
	mu         sync.Mutex
	session    credentials
	redirector LoginRedirector
	delay      time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
	pending    *time.Timer
}

// NewAuthGuard creates a guard. delay <= 0 falls back to DefaultLoginRedirectDelay.
func NewAuthGuard(session credentials, redirector LoginRedirector, delay time.Duration,
	metrics *observability.Metrics, logger *zap.Logger) *AuthGuard {
	if delay <= 0 {
		delay = DefaultLoginRedirectDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGuard{
		session:    session,
		redirector: redirector,
		delay:      delay,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleUnauthorized clears the credential and schedules the login redirect.
// The failed request is never retried.
func (g *AuthGuard) HandleUnauthorized(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		if err := g.session.ClearToken(); err != nil {
			g.logger.Error("failed to clear expired session", zap.Error(err))
		}
	}

	if g.pending != nil {
		return
	}

	g.logger.Warn("session expired, redirecting to login", zap.Duration("delay", g.delay), zap.String("reason", reason))
	g.pending = time.AfterFunc(g.delay, func() {
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()

		g.metrics.ObserveRedirect()
		if g.redirector != nil {
			g.redirector.RedirectToLogin(reason)
		}
	})
}

// Pending reports whether a redirect is scheduled.
func (g *AuthGuard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Stop cancels a scheduled redirect.
func (g *AuthGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}
