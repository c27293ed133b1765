// Command dyosync keeps DYO/DYS balances and staking positions of the configured
// accounts in sync with the platform API and serves them on a local dashboard.
//
// Usage:
//
//	dyosync --config config.yaml
//	dyosync --api https://api.example.com --accounts addr1,addr2
//	dyosync setup (interactive wizard, then starts syncing)
//
// Environment overrides:
//
//	DYOSYNC_API_BASE, DYOSYNC_API_TOKEN, DYOSYNC_ACCOUNTS, DYOSYNC_POLL_INTERVAL,
//	DYOSYNC_HTTP_TIMEOUT, DYOSYNC_SESSION_FILE, DYOSYNC_WEB_ADDR, DYOSYNC_DEBUG
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/config"
	"github.com/vadiminshakov/dyosync/internal"
	"github.com/vadiminshakov/dyosync/internal/session"
	"github.com/vadiminshakov/dyosync/internal/setup"
	"github.com/vadiminshakov/dyosync/internal/storage/sessionstore"
)

func main() {
	var (
		conf config.Config
		err  error
	)
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		conf, err = runSetup()
	} else {
		conf, err = config.Get()
	}
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(conf.Debug)
	defer logger.Sync()

	sess, err := openSession(conf.SessionFile, logger.Named("session"))
	if err != nil {
		logger.Fatal("failed to open session", zap.Error(err))
	}

	app, err := internal.NewSyncApp(conf, sess, logger)
	if err != nil {
		logger.Fatal("failed to create sync app", zap.Error(err))
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("sync stopped with error", zap.Error(err))
		return
	}
	logger.Info("shutdown complete")
}

func runSetup() (config.Config, error) {
	sess, err := openSession("", zap.NewNop())
	if err != nil {
		return config.Config{}, err
	}
	if err := setup.RunTUI(setup.DefaultConfigFile, sess); err != nil {
		return config.Config{}, err
	}
	return config.Load([]string{"--config", setup.DefaultConfigFile})
}

func openSession(path string, logger *zap.Logger) (*session.Session, error) {
	store, err := sessionstore.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return session.Open(store, logger)
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger
}
