package balancesync

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

type poller struct {
	account  string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartPolling loads the snapshot and staking positions of account immediately
// and then every interval until StopPolling, ctx cancellation, an account change or a 401.
// interval <= 0 uses the configured PollInterval. Starting again for the
// account already being polled is a no-op.
func (s *Syncer) StartPolling(ctx context.Context, account string, interval time.Duration) {
	account = strings.TrimSpace(account)
	if interval <= 0 {
		interval = s.cfg.PollInterval
	}

	s.mu.Lock()
	if account != s.account {
		s.switchAccountLocked(account)
	}
	if account == "" {
		s.mu.Unlock()
		return
	}
	if s.poll != nil && s.poll.account == account {
		s.mu.Unlock()
		return
	}
	if s.poll != nil {
		s.poll.cancel()
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p := &poller{account: account, interval: interval, cancel: cancel, done: make(chan struct{})}
	s.poll = p
	s.mu.Unlock()

	go s.runPoller(pollCtx, p)
}

// StopPolling cancels the active poller and waits for it to exit. After it
// returns no further fetch is issued.
func (s *Syncer) StopPolling() {
	s.mu.Lock()
	p := s.poll
	s.poll = nil
	s.mu.Unlock()

	if p == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Polling reports the account being polled, if any.
func (s *Syncer) Polling() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poll == nil {
		return "", false
	}
	return s.poll.account, true
}

func (s *Syncer) runPoller(ctx context.Context, p *poller) {
	defer close(p.done)
	defer func() {
		p.cancel()
		s.mu.Lock()
		if s.poll == p {
			s.poll = nil
		}
		s.mu.Unlock()
	}()

	s.metrics.PollerStarted()
	defer s.metrics.PollerStopped()

	logger := s.logger.With(zap.String("account", p.account))
	logger.Info("starting balance polling", zap.Duration("interval", p.interval))

	s.pollOnce(ctx, logger, p.account)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("balance polling stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx, logger, p.account)
		}
	}
}

func (s *Syncer) pollOnce(ctx context.Context, logger *zap.Logger, account string) {
	if ctx.Err() != nil {
		return
	}
	if err := s.LoadSnapshot(ctx, account); err != nil {
		// already logged and surfaced by LoadSnapshot; the next tick retries
		logger.Debug("balance poll failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}
	// rewards accrue on the server only
	if err := s.LoadPositions(ctx, account); err != nil {
		logger.Debug("positions poll failed", zap.Error(err))
	}
}
