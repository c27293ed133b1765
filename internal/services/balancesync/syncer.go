// Package balancesync keeps a displayed balance snapshot close to server state.
//
// A Syncer belongs to one view. It loads snapshots (Fetcher), replaces local
// state with each fresh snapshot (Reconciler), re-runs loads on a timer (Poller)
// and sends stake/unstake/claim requests followed by a targeted re-fetch
// (mutator). Responses are applied only if they are newer than what is already
// shown and still belong to the selected account.
package balancesync

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/clients"
	"github.com/vadiminshakov/dyosync/internal/domain"
	"github.com/vadiminshakov/dyosync/internal/observability"
)

const (
	// DefaultPollInterval matches the refresh cadence of the balance views.
	DefaultPollInterval = 15 * time.Second
	// DefaultStatusResetDelay is how long success/error banners stay up.
	DefaultStatusResetDelay = 3 * time.Second
)

// DefaultStakePeriods are the lock periods offered by the staking form, in days.
var DefaultStakePeriods = []int{30, 90, 180, 365}

type api interface {
	BalanceDetail(ctx context.Context, account string) (domain.BalanceSnapshot, error)
	StakingPositions(ctx context.Context, account string) (clients.StakingOverview, error)
	Stake(ctx context.Context, account string, amount decimal.Decimal, periodDays int) (clients.StakingResult, error)
	Unstake(ctx context.Context, account, positionID string) (clients.StakingResult, error)
	ClaimRewards(ctx context.Context, account string) (clients.StakingResult, error)
}

type snapshotStore interface {
	Save(snapshot domain.BalanceSnapshot) error
}

type actionJournal interface {
	Record(record domain.MutationRecord) error
}

type snapshotPublisher interface {
	Publish(snapshot domain.BalanceSnapshot)
}

// Config tunes a Syncer.
type Config struct {
	PollInterval     time.Duration
	StatusResetDelay time.Duration
	StakePeriods     []int
	DefaultAPY       decimal.Decimal
}

// Option configures optional collaborators.
type Option func(*Syncer)

// WithSnapshotStore persists every applied snapshot.
func WithSnapshotStore(store snapshotStore) Option {
	return func(s *Syncer) { s.store = store }
}

// WithJournal records every mutation attempt.
func WithJournal(journal actionJournal) Option {
	return func(s *Syncer) { s.journal = journal }
}

// WithPublisher fans applied snapshots out to subscribers.
func WithPublisher(p snapshotPublisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithAuthGuard routes 401 responses to the shared guard.
func WithAuthGuard(g *AuthGuard) Option {
	return func(s *Syncer) { s.guard = g }
}

// WithMetrics exports load and mutation metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// State is a copy of what the view displays.
type State struct {
	Account     string                   `json:"account"`
	Connected   bool                     `json:"connected"`
	HasSnapshot bool                     `json:"has_snapshot"`
	Snapshot    domain.BalanceSnapshot   `json:"snapshot"`
	Display     domain.SnapshotDisplay   `json:"display"`
	Positions   []domain.StakingPosition `json:"positions"`
	RewardRate  domain.RewardRate        `json:"reward_rate"`
	LastError   string                   `json:"last_error,omitempty"`
}

// Syncer is safe for concurrent use.
type Syncer struct {
	api       api
	cfg       Config
	logger    *zap.Logger
	store     snapshotStore
	journal   actionJournal
	publisher snapshotPublisher
	guard     *AuthGuard
	metrics   *observability.Metrics
	now       func() time.Time

	mu sync.Mutex
	// generation changes whenever the selected account changes; responses
	// issued under an older generation are dropped.
	generation uint64
	nextSeq    uint64
	appliedSeq uint64
	posSeq     uint64
	account    string
	snapshot   domain.BalanceSnapshot
	hasSnap    bool
	positions  []domain.StakingPosition
	rate       domain.RewardRate
	lastErr    string
	poll       *poller
	status     map[domain.Mutation]*domain.StatusIndicator
}

// NewSyncer creates a Syncer for one view.
func NewSyncer(client api, cfg Config, logger *zap.Logger, opts ...Option) (*Syncer, error) {
	if client == nil {
		return nil, errors.New("api client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StatusResetDelay <= 0 {
		cfg.StatusResetDelay = DefaultStatusResetDelay
	}
	if len(cfg.StakePeriods) == 0 {
		cfg.StakePeriods = DefaultStakePeriods
	}

	s := &Syncer{
		api:    client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		rate:   domain.ResolveRewardRate(nil, cfg.DefaultAPY),
		status: map[domain.Mutation]*domain.StatusIndicator{
			domain.MutationStake:        domain.NewStatusIndicator(cfg.StatusResetDelay),
			domain.MutationUnstake:      domain.NewStatusIndicator(cfg.StatusResetDelay),
			domain.MutationClaimRewards: domain.NewStatusIndicator(cfg.StatusResetDelay),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// LoadSnapshot fetches the balance of account and replaces the displayed snapshot.
// An empty account puts the view in the not-connected state and sends nothing.
// On failure the previous snapshot stays in place and the error is logged.
func (s *Syncer) LoadSnapshot(ctx context.Context, account string) error {
	account = strings.TrimSpace(account)
	gen, seq, ok := s.begin(account)
	if !ok {
		s.metrics.ObserveLoad("skipped", 0)
		return nil
	}

	started := s.now()
	snapshot, err := s.api.BalanceDetail(ctx, account)
	took := s.now().Sub(started)
	if err == nil && ctx.Err() != nil {
		// the caller went away while the response was in flight
		s.metrics.ObserveLoad("stale", took)
		return nil
	}
	if err != nil {
		s.metrics.ObserveLoad("failed", took)
		s.fail(gen, "load snapshot", err)
		return errors.Wrap(err, "load snapshot")
	}

	if !s.applySnapshot(gen, seq, snapshot) {
		s.metrics.ObserveStale()
		s.metrics.ObserveLoad("stale", took)
		return nil
	}
	s.metrics.ObserveLoad("applied", took)

	return nil
}

// LoadPositions fetches the staking positions and reward rate of account.
func (s *Syncer) LoadPositions(ctx context.Context, account string) error {
	account = strings.TrimSpace(account)
	gen, seq, ok := s.begin(account)
	if !ok {
		return nil
	}

	overview, err := s.api.StakingPositions(ctx, account)
	if err != nil {
		s.fail(gen, "load positions", err)
		return errors.Wrap(err, "load positions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || seq <= s.posSeq {
		s.metrics.ObserveStale()
		return nil
	}
	s.posSeq = seq
	s.positions = slices.Clone(overview.Positions)
	s.rate = domain.ResolveRewardRate(overview.APY, s.cfg.DefaultAPY)
	if s.rate.Source == domain.RateSourceFallback {
		s.logger.Debug("server did not report APY, showing configured default",
			zap.String("account", account), zap.String("apy", s.rate.APY.String()))
	}

	return nil
}

// Refresh reloads snapshot and positions. Used after successful mutations.
func (s *Syncer) Refresh(ctx context.Context, account string) error {
	snapErr := s.LoadSnapshot(ctx, account)
	posErr := s.LoadPositions(ctx, account)
	if snapErr != nil {
		return snapErr
	}
	return posErr
}

// State returns a copy of the displayed state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]domain.StakingPosition, len(s.positions))
	copy(positions, s.positions)

	st := State{
		Account:     s.account,
		Connected:   s.account != "",
		HasSnapshot: s.hasSnap,
		Snapshot:    s.snapshot,
		Positions:   positions,
		RewardRate:  s.rate,
		LastError:   s.lastErr,
	}
	if s.hasSnap {
		st.Display = s.snapshot.Display()
	}
	return st
}

// Status returns the form status of a mutation kind.
func (s *Syncer) Status(kind domain.Mutation) (domain.FormStatus, string) {
	ind, ok := s.status[kind]
	if !ok {
		return domain.StatusIdle, ""
	}
	return ind.Current()
}

// Close stops polling and pending status resets.
func (s *Syncer) Close() {
	s.StopPolling()
	for _, ind := range s.status {
		ind.Stop()
	}
}

// begin selects account (switching if needed) and reserves a sequence number.
func (s *Syncer) begin(account string) (gen, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account != s.account {
		s.switchAccountLocked(account)
	}
	if account == "" {
		return 0, 0, false
	}

	s.nextSeq++
	return s.generation, s.nextSeq, true
}

// switchAccountLocked forgets everything shown for the previous account and
// cancels its poller. Callers hold s.mu.
func (s *Syncer) switchAccountLocked(account string) {
	if s.poll != nil && s.poll.account != account {
		s.poll.cancel()
		s.poll = nil
	}

	s.generation++
	s.account = account
	s.snapshot = domain.BalanceSnapshot{}
	s.hasSnap = false
	s.positions = nil
	s.rate = domain.ResolveRewardRate(nil, s.cfg.DefaultAPY)
	s.lastErr = ""
	s.appliedSeq = 0
	s.posSeq = 0
}

// applySnapshot replaces the displayed snapshot in full. It reports false when
// the response is stale.
func (s *Syncer) applySnapshot(gen, seq uint64, snapshot domain.BalanceSnapshot) bool {
	s.mu.Lock()
	if gen != s.generation || seq <= s.appliedSeq {
		s.mu.Unlock()
		s.logger.Debug("dropping stale snapshot", zap.String("account", snapshot.Account), zap.Uint64("seq", seq))
		return false
	}
	s.appliedSeq = seq
	s.snapshot = snapshot
	s.hasSnap = true
	s.lastErr = ""
	s.mu.Unlock()

	if !snapshot.Consistent() {
		s.logger.Debug("server totals do not add up, displaying as reported",
			zap.String("account", snapshot.Account),
			zap.String("total", snapshot.Total.String()),
			zap.String("available", snapshot.Available.String()),
			zap.String("staked", snapshot.Staked.String()))
	}

	if s.store != nil {
		if err := s.store.Save(snapshot); err != nil {
			s.logger.Error("failed to persist balance snapshot", zap.Error(err), zap.String("account", snapshot.Account))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(snapshot)
	}
	s.metrics.SetAvailable(snapshot.Account, snapshot.Available.InexactFloat64())

	return true
}

// fail records a load failure without touching the displayed snapshot.
func (s *Syncer) fail(gen uint64, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	s.mu.Lock()
	account := s.account
	current := gen == s.generation
	if current {
		s.lastErr = clients.DisplayMessage(err)
	}
	s.mu.Unlock()

	s.logger.Error("balance sync request failed", zap.String("op", op), zap.String("account", account), zap.Error(err))

	if errors.Is(err, clients.ErrUnauthorized) {
		s.handleUnauthorized(op, account, current)
	}
}

// handleUnauthorized stops the poller of account, unless the request belonged
// to an account that is no longer selected, and hands off to the guard.
func (s *Syncer) handleUnauthorized(op, account string, current bool) {
	s.mu.Lock()
	if current && s.poll != nil && s.poll.account == account {
		s.poll.cancel()
		s.poll = nil
	}
	s.mu.Unlock()

	if s.guard != nil {
		s.guard.HandleUnauthorized(op)
	}
}
