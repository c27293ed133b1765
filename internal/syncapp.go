package internal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/dyosync/config"
	"github.com/vadiminshakov/dyosync/internal/clients"
	"github.com/vadiminshakov/dyosync/internal/events"
	"github.com/vadiminshakov/dyosync/internal/observability"
	"github.com/vadiminshakov/dyosync/internal/services/balancesync"
	"github.com/vadiminshakov/dyosync/internal/session"
	"github.com/vadiminshakov/dyosync/internal/storage/actions"
	"github.com/vadiminshakov/dyosync/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/dyosync/internal/web"
	"github.com/vadiminshakov/dyosync/pkg/retrier"
)

const liveBuffer = 16

type healthChecker interface {
	Health(ctx context.Context) error
}

// SyncApp owns one syncer per configured account, the dashboard and the stores
// they write to.
type SyncApp struct {
	Config config.Config

	logger    *zap.Logger
	session   *session.Session
	snapshots *balancesnapshots.WALStore
	journal   *actions.WALStore
	guard     *balancesync.AuthGuard
	server    *web.Server
	syncers   map[string]*balancesync.Syncer
	health    healthChecker

	mu     sync.Mutex
	runCtx context.Context
}

// NewSyncApp wires every component for conf. The session is shared by the API
// client, the auth guard and the dashboard login.
func NewSyncApp(conf config.Config, sess *session.Session, logger *zap.Logger) (*SyncApp, error) {
	if len(conf.Accounts) == 0 {
		return nil, errors.New("no accounts configured")
	}
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if conf.APIToken != "" {
		if err := sess.SetToken(conf.APIToken); err != nil {
			return nil, errors.Wrap(err, "failed to store configured token")
		}
	}

	snapshots, err := balancesnapshots.NewWALStore(conf.SnapshotWALDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open balance snapshot store")
	}
	journal, err := actions.NewWALStore(conf.ActionWALDir)
	if err != nil {
		_ = snapshots.Close()
		return nil, errors.Wrap(err, "failed to open action journal")
	}

	client := clients.NewAPIClient(conf.APIBase, conf.HTTPTimeout, sess, logger)
	metrics := observability.NewMetrics()
	live := events.NewSnapshotBroadcaster(liveBuffer)

	app := &SyncApp{
		Config:    conf,
		logger:    logger,
		session:   sess,
		snapshots: snapshots,
		journal:   journal,
		syncers:   make(map[string]*balancesync.Syncer, len(conf.Accounts)),
		health:    client,
	}

	routes := make(web.Syncers, len(conf.Accounts))
	app.server = web.NewServer(conf.WebAddr, web.Deps{
		Syncers:  routes,
		Store:    snapshots,
		Live:     live,
		Session:  sess,
		Metrics:  metrics,
		Logger:   logger.Named("web"),
		Platform: client,
		OnLogin:  app.restartPolling,
		OnUnauthorized: func(op string) {
			app.guard.HandleUnauthorized(op)
		},
	})
	app.guard = balancesync.NewAuthGuard(sess, app.server, conf.LoginRedirectDelay, metrics, logger.Named("auth"))

	syncCfg := balancesync.Config{
		PollInterval:     conf.PollInterval,
		StatusResetDelay: conf.StatusResetDelay,
		StakePeriods:     conf.StakePeriods,
		DefaultAPY:       conf.DefaultAPY,
	}
	for _, account := range conf.Accounts {
		syncer, err := balancesync.NewSyncer(client, syncCfg, logger.With(zap.String("account", account)),
			balancesync.WithSnapshotStore(snapshots),
			balancesync.WithJournal(journal),
			balancesync.WithPublisher(live),
			balancesync.WithAuthGuard(app.guard),
			balancesync.WithMetrics(metrics),
		)
		if err != nil {
			app.Close()
			return nil, errors.Wrapf(err, "failed to create syncer for %s", account)
		}
		app.syncers[account] = syncer
		routes[account] = syncer
	}

	return app, nil
}

// Run waits for the API and then polls balances and positions of every account
// until ctx is cancelled. The dashboard runs alongside.
func (a *SyncApp) Run(ctx context.Context) error {
	if err := a.waitHealthy(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	g.Go(func() error {
		if len(a.Config.TLSDomains) > 0 {
			return a.server.StartWithAutoTLS(ctx, a.Config.TLSDomains, a.Config.TLSCacheDir)
		}
		return a.server.Start(ctx)
	})

	for account, syncer := range a.syncers {
		if err := syncer.LoadPositions(ctx, account); err != nil {
			a.logger.Warn("initial positions load failed", zap.String("account", account), zap.Error(err))
		}
		syncer.StartPolling(ctx, account, a.Config.PollInterval)
	}
	a.logger.Info("balance sync started",
		zap.Strings("accounts", a.Config.Accounts),
		zap.Duration("poll_interval", a.Config.PollInterval))

	g.Go(func() error {
		<-ctx.Done()
		for _, syncer := range a.syncers {
			syncer.StopPolling()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *SyncApp) waitHealthy(ctx context.Context) error {
	r := retrier.New(
		retrier.WithMaxRetries(a.Config.HealthRetries),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, clients.ErrUnauthorized)
		}),
		retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
			a.logger.Warn("platform API not healthy yet",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err := r.Do(ctx, a.health.Health); err != nil {
		return errors.Wrap(err, "platform API is unavailable")
	}
	return nil
}

// restartPolling resumes pollers stopped by an expired session.
func (a *SyncApp) restartPolling() {
	a.mu.Lock()
	ctx := a.runCtx
	a.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	a.guard.Stop()
	for account, syncer := range a.syncers {
		syncer.StartPolling(ctx, account, a.Config.PollInterval)
	}
	a.logger.Info("session restored, polling resumed")
}

// Syncer returns the syncer of account.
func (a *SyncApp) Syncer(account string) (*balancesync.Syncer, bool) {
	s, ok := a.syncers[account]
	return s, ok
}

// Close stops all syncers and closes the stores.
func (a *SyncApp) Close() {
	for _, syncer := range a.syncers {
		syncer.Close()
	}
	if a.guard != nil {
		a.guard.Stop()
	}
	if err := a.snapshots.Close(); err != nil {
		a.logger.Error("failed to close snapshot store", zap.Error(err))
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Error("failed to close action journal", zap.Error(err))
	}
}
