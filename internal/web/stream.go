package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

const (
	snapshotPollInterval = 3 * time.Second
	heartbeatInterval    = 20 * time.Second
	fullHistoryRecords   = 100
)

type snapshotEvent struct {
	Account  string                 `json:"account"`
	Snapshot domain.BalanceSnapshot `json:"snapshot"`
	Display  domain.SnapshotDisplay `json:"display"`
}

func newSnapshotEvent(s domain.BalanceSnapshot) snapshotEvent {
	return snapshotEvent{Account: s.Account, Snapshot: s, Display: s.Display()}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

// snapshotCursor tracks how far one subscriber has read the snapshot log.
type snapshotCursor struct {
	account   string
	lastIndex uint64
}

// next returns the records appended since the previous call, filtered to the
// cursor's account. The cursor moves past every scanned record, matching or not.
func (c *snapshotCursor) next(store balanceSnapshotReader) ([]domain.BalanceSnapshotRecord, error) {
	records, err := store.SnapshotsAfter(c.lastIndex)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Index > c.lastIndex {
			c.lastIndex = record.Index
		}
	}
	if c.account != "" {
		records = filterAccount(records, c.account)
	}
	return records, nil
}

// handleBalanceStream replays persisted snapshots after Last-Event-ID and
// then tails the snapshot log.
func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot store not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}
	logger := s.deps.Logger.With(zap.String("stream", "balance"))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	cursor := &snapshotCursor{
		account:   strings.TrimSpace(r.URL.Query().Get("account")),
		lastIndex: parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id")),
	}
	isFirstLoad := cursor.lastIndex == 0
	sent := false

	sendSnapshots := func() error {
		records, err := cursor.next(s.deps.Store)
		if err != nil {
			return err
		}
		if isFirstLoad && len(records) > fullHistoryRecords {
			records = thinRecords(records)
		}
		isFirstLoad = false

		for _, record := range records {
			payload, err := json.Marshal(newSnapshotEvent(record.Snapshot))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: balance\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			sent = true
		}
		if len(records) > 0 {
			flusher.Flush()
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		logger.Error("initial snapshot load failed", zap.Error(err))
		return
	}
	if !sent {
		fmt.Fprintf(w, "event: no_data\n")
		fmt.Fprintf(w, "data: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				logger.Error("snapshot poll failed", zap.Error(err))
			}
		}
	}
}

// handleLiveStream pushes snapshots as soon as a syncer applies them.
// Nothing is replayed.
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "live updates not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ch := s.deps.Live.Subscribe(strings.TrimSpace(r.URL.Query().Get("account")))
	defer s.deps.Live.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case snapshot, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(newSnapshotEvent(snapshot))
			if err != nil {
				s.deps.Logger.Error("encode live snapshot", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: balance\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func filterAccount(records []domain.BalanceSnapshotRecord, account string) []domain.BalanceSnapshotRecord {
	out := records[:0:0]
	for _, rec := range records {
		if rec.Snapshot.Account == account {
			out = append(out, rec)
		}
	}
	return out
}

// parseLastEventID prefers the Last-Event-ID header; the query parameter lets a
// manual reconnect resume from a known index.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// thinRecords keeps the last fullHistoryRecords records and exponentially
// thins everything older.
func thinRecords(records []domain.BalanceSnapshotRecord) []domain.BalanceSnapshotRecord {
	if len(records) <= fullHistoryRecords {
		return records
	}

	older := records[:len(records)-fullHistoryRecords]
	var thinned []domain.BalanceSnapshotRecord

	skip := 1
	kept := 0
	for i := len(older) - 1; i >= 0; i -= skip + 1 {
		thinned = append(thinned, older[i])
		kept++
		if kept%12 == 0 {
			skip *= 2
		}
	}
	for l, r := 0, len(thinned)-1; l < r; l, r = l+1, r-1 {
		thinned[l], thinned[r] = thinned[r], thinned[l]
	}

	return append(thinned, records[len(records)-fullHistoryRecords:]...)
}
