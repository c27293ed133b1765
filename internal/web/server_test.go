package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/clients"
	"github.com/vadiminshakov/dyosync/internal/domain"
	"github.com/vadiminshakov/dyosync/internal/events"
	"github.com/vadiminshakov/dyosync/internal/observability"
	"github.com/vadiminshakov/dyosync/internal/services/balancesync"
	"github.com/vadiminshakov/dyosync/internal/session"
)

type stubSyncer struct {
	state    balancesync.State
	stakeErr error
	stakes   int
	refresh  int
}

func (s *stubSyncer) State() balancesync.State { return s.state }

func (s *stubSyncer) Status(kind domain.Mutation) (domain.FormStatus, string) {
	if kind == domain.MutationStake && s.stakes > 0 {
		return domain.StatusSuccess, "tokens staked"
	}
	return domain.StatusIdle, ""
}

func (s *stubSyncer) Refresh(context.Context, string) error {
	s.refresh++
	return nil
}

func (s *stubSyncer) Stake(_ context.Context, _ string, _ decimal.Decimal, _ int) (balancesync.MutationResult, error) {
	s.stakes++
	if s.stakeErr != nil {
		return balancesync.MutationResult{}, s.stakeErr
	}
	return balancesync.MutationResult{RequestID: "req-1", Message: "tokens staked"}, nil
}

func (s *stubSyncer) Unstake(context.Context, string, string) (balancesync.MutationResult, error) {
	return balancesync.MutationResult{Message: "position unstaked"}, nil
}

func (s *stubSyncer) ClaimRewards(context.Context, string) (balancesync.MutationResult, error) {
	return balancesync.MutationResult{}, &balancesync.ValidationError{Field: "rewards", Message: "no rewards to claim"}
}

type stubStore struct {
	records []domain.BalanceSnapshotRecord
}

func (s *stubStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	var out []domain.BalanceSnapshotRecord
	for _, r := range s.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

func loadedState(account string) balancesync.State {
	snap := domain.NewBalanceSnapshot(account,
		decimal.RequireFromString("120.5"), decimal.NewFromInt(4),
		decimal.NewFromInt(300), decimal.RequireFromString("420.5"), time.Now())
	return balancesync.State{
		Account:     account,
		Connected:   true,
		HasSnapshot: true,
		Snapshot:    snap,
		Display:     snap.Display(),
		RewardRate:  domain.RewardRate{APY: decimal.NewFromInt(12), Source: domain.RateSourceFallback},
		Positions: []domain.StakingPosition{
			{ID: "p1", Amount: decimal.NewFromInt(300), Rewards: decimal.RequireFromString("1.25"), Status: domain.PositionStatusLocked},
		},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestServer_Balance(t *testing.T) {
	syncer := &stubSyncer{state: loadedState("abc123")}
	srv := NewServer(":0", Deps{Syncers: Syncers{"abc123": syncer}})
	h := srv.Handler()

	rec, body := doJSON(t, h, http.MethodGet, "/api/accounts/abc123/balance?refresh=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, syncer.refresh)

	display := body["display"].(map[string]any)
	assert.Equal(t, "120.50 DYO", display["available"])
	assert.Equal(t, "300.00 DYO", display["staked"])
	assert.Equal(t, true, body["has_snapshot"])
	assert.Equal(t, false, body["login_required"])
	statuses := body["statuses"].(map[string]any)
	assert.Contains(t, statuses, "claim_rewards")

	rec, _ = doJSON(t, h, http.MethodGet, "/api/accounts/nobody/balance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Positions(t *testing.T) {
	srv := NewServer(":0", Deps{Syncers: Syncers{"abc": &stubSyncer{state: loadedState("abc")}}})

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/accounts/abc/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.25", body["pending_rewards"])
	rate := body["reward_rate"].(map[string]any)
	assert.Equal(t, "fallback", rate["source"])
	assert.Len(t, body["positions"], 1)
}

func TestServer_Mutations(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		stakeErr   error
		wantCode   int
		wantStatus string
		wantMsg    string
	}{
		{
			name:       "stake ok",
			path:       "/api/accounts/abc/stake",
			body:       `{"amount":"10","period_days":30}`,
			wantCode:   http.StatusOK,
			wantStatus: "success",
			wantMsg:    "tokens staked",
		},
		{
			name:       "unparseable amount",
			path:       "/api/accounts/abc/stake",
			body:       `{"amount":"ten","period_days":30}`,
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: "error",
			wantMsg:    "amount: amount must be a number",
		},
		{
			name:       "server message verbatim",
			path:       "/api/accounts/abc/stake",
			body:       `{"amount":"10","period_days":30}`,
			stakeErr:   &clients.APIError{Status: http.StatusBadRequest, Message: "Insufficient balance", Parsed: true},
			wantCode:   http.StatusBadGateway,
			wantStatus: "error",
			wantMsg:    "Insufficient balance",
		},
		{
			name:       "expired session",
			path:       "/api/accounts/abc/stake",
			body:       `{"amount":"10","period_days":30}`,
			stakeErr:   clients.ErrUnauthorized,
			wantCode:   http.StatusUnauthorized,
			wantStatus: "error",
			wantMsg:    clients.ErrUnauthorized.Error(),
		},
		{
			name:       "bad body",
			path:       "/api/accounts/abc/unstake",
			body:       `{`,
			wantCode:   http.StatusBadRequest,
			wantStatus: "error",
		},
		{
			name:       "unstake ok",
			path:       "/api/accounts/abc/unstake",
			body:       `{"position_id":"p1"}`,
			wantCode:   http.StatusOK,
			wantStatus: "success",
			wantMsg:    "position unstaked",
		},
		{
			name:       "claim validation",
			path:       "/api/accounts/abc/claim",
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: "error",
			wantMsg:    "rewards: no rewards to claim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &stubSyncer{state: loadedState("abc"), stakeErr: tt.stakeErr}
			srv := NewServer(":0", Deps{Syncers: Syncers{"abc": syncer}})

			rec, body := doJSON(t, srv.Handler(), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, body["status"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
			}
		})
	}
}

func TestServer_LoginFlow(t *testing.T) {
	sess, err := session.Open(session.NewMemoryStorage(nil), zap.NewNop())
	require.NoError(t, err)
	logins := 0
	srv := NewServer(":0", Deps{Session: sess, OnLogin: func() { logins++ }})
	h := srv.Handler()

	srv.RedirectToLogin("load snapshot")
	_, body := doJSON(t, h, http.MethodGet, "/api/session", "")
	assert.Equal(t, true, body["login_required"])
	assert.Equal(t, false, body["logged_in"])

	rec, _ := doJSON(t, h, http.MethodPost, "/api/session", `{"token":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/session", `{"token":"fresh"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", sess.Token())
	assert.Equal(t, 1, logins)

	_, body = doJSON(t, h, http.MethodGet, "/api/session", "")
	assert.Equal(t, false, body["login_required"])
	assert.Equal(t, true, body["logged_in"])
}

func TestServer_HealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.ObserveMutation("stake", "succeeded")
	h := NewServer(":0", Deps{Metrics: metrics}).Handler()

	rec, body := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dyosync_mutations_total{kind="stake",outcome="succeeded"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "<title>dyosync</title>")
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestServer_BalanceStreamReplaysLog(t *testing.T) {
	store := &stubStore{records: []domain.BalanceSnapshotRecord{
		{Index: 1, Snapshot: loadedState("abc").Snapshot},
		{Index: 2, Snapshot: loadedState("other").Snapshot},
	}}
	ts := httptest.NewServer(NewServer(":0", Deps{Store: store}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/balance/stream?account=other", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	event, data := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "balance", event)

	var ev snapshotEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "other", ev.Account)
	assert.Equal(t, "120.50 DYO", ev.Display.Available)
}

func TestServer_LiveStream(t *testing.T) {
	b := events.NewSnapshotBroadcaster(4)
	ts := httptest.NewServer(NewServer(":0", Deps{Live: b}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/balance/live?account=abc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	require.Equal(t, 1, b.Subscribers())

	b.Publish(loadedState("ignored").Snapshot)
	b.Publish(loadedState("abc").Snapshot)

	event, data := readEvent(t, reader)
	assert.Equal(t, "balance", event)
	assert.Contains(t, data, `"account":"abc"`)
}

func TestThinRecords(t *testing.T) {
	records := make([]domain.BalanceSnapshotRecord, 500)
	for i := range records {
		records[i] = domain.BalanceSnapshotRecord{Index: uint64(i + 1)}
	}

	thinned := thinRecords(records)
	require.Greater(t, len(thinned), fullHistoryRecords)
	assert.Less(t, len(thinned), len(records))
	assert.Equal(t, records[len(records)-fullHistoryRecords:], thinned[len(thinned)-fullHistoryRecords:])
	for i := 1; i < len(thinned); i++ {
		assert.Less(t, thinned[i-1].Index, thinned[i].Index)
	}

	assert.Len(t, thinRecords(records[:50]), 50)
}

func TestSnapshotCursor_SkipsOtherAccounts(t *testing.T) {
	record := func(index uint64, account string) domain.BalanceSnapshotRecord {
		return domain.BalanceSnapshotRecord{Index: index, Snapshot: domain.BalanceSnapshot{Account: account}}
	}
	store := &stubStore{records: []domain.BalanceSnapshotRecord{
		record(1, "other"), record(2, "abc"), record(3, "other"), record(4, "other"),
	}}
	cursor := &snapshotCursor{account: "abc"}

	got, err := cursor.next(store)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Index)
	assert.Equal(t, uint64(4), cursor.lastIndex)

	got, err = cursor.next(store)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, uint64(4), cursor.lastIndex)

	store.records = append(store.records, record(5, "other"), record(6, "abc"))
	got, err = cursor.next(store)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(6), got[0].Index)
	assert.Equal(t, uint64(6), cursor.lastIndex)

	none := &snapshotCursor{account: "missing"}
	_, err = none.next(store)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), none.lastIndex)
}
