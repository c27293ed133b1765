// Command balancewatch follows the balance stream of a running dyosync
// dashboard and logs every snapshot. It resumes from the last seen event
// after a dropped connection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/pkg/retrier"
)

var errStreamClosed = errors.New("stream closed by server")

type balanceEvent struct {
	Account string `json:"account"`
	Display struct {
		Available string `json:"available"`
		Staked    string `json:"staked"`
		Secondary string `json:"secondary"`
		Total     string `json:"total"`
	} `json:"display"`
}

type watcher struct {
	client  *http.Client
	url     string
	account string
	lastID  string
	logger  *zap.Logger
}

func main() {
	var (
		baseURL string
		account string
		live    bool
		retries int
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8090", "dashboard base URL")
	flag.StringVar(&account, "account", "", "only show this account")
	flag.BoolVar(&live, "live", false, "follow live updates instead of the persisted log")
	flag.IntVar(&retries, "retries", 10, "reconnect attempts before giving up")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	path := "/balance/stream"
	if live {
		path = "/balance/live"
	}
	w := &watcher{
		client:  &http.Client{Timeout: 0},
		url:     baseURL + path,
		account: account,
		logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := retrier.New(
		retrier.WithMaxRetries(retries),
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxInterval(30*time.Second),
		retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
			logger.Warn("reconnecting", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err := r.Do(ctx, w.follow); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("stream lost", zap.Error(err))
	}
}

func (w *watcher) follow(ctx context.Context) error {
	u, err := url.Parse(w.url)
	if err != nil {
		return err
	}
	if w.account != "" {
		q := u.Query()
		q.Set("account", w.account)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if w.lastID != "" {
		req.Header.Set("Last-Event-ID", w.lastID)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	w.logger.Info("connected", zap.String("url", u.String()), zap.String("last_event_id", w.lastID))

	err = readEvents(resp.Body, w.handle)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return errors.Wrap(err, "read stream")
	}
	return errStreamClosed
}

func (w *watcher) handle(ev sseEvent) error {
	if ev.ID != "" {
		w.lastID = ev.ID
	}
	switch ev.Name {
	case "no_data":
		w.logger.Info("no snapshots recorded yet")
	case "balance":
		var b balanceEvent
		if err := json.Unmarshal([]byte(ev.Data), &b); err != nil {
			w.logger.Warn("bad balance event", zap.String("data", ev.Data), zap.Error(err))
			return nil
		}
		w.logger.Info("balance",
			zap.String("account", b.Account),
			zap.String("available", b.Display.Available),
			zap.String("staked", b.Display.Staked),
			zap.String("dys", b.Display.Secondary),
			zap.String("total", b.Display.Total))
	}
	return nil
}
