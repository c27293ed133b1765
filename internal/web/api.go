package web

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/clients"
	"github.com/vadiminshakov/dyosync/internal/domain"
	"github.com/vadiminshakov/dyosync/internal/services/balancesync"
)

// AccountSyncer is the per-account view served by the API.
type AccountSyncer interface {
	State() balancesync.State
	Status(kind domain.Mutation) (domain.FormStatus, string)
	Refresh(ctx context.Context, account string) error
	Stake(ctx context.Context, account string, amount decimal.Decimal, periodDays int) (balancesync.MutationResult, error)
	Unstake(ctx context.Context, account, positionID string) (balancesync.MutationResult, error)
	ClaimRewards(ctx context.Context, account string) (balancesync.MutationResult, error)
}

// Syncers maps account identifiers to their syncer.
type Syncers map[string]AccountSyncer

type statusView struct {
	Status  domain.FormStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

type balanceResponse struct {
	balancesync.State
	Statuses      map[string]statusView `json:"statuses"`
	LoginRequired bool                  `json:"login_required"`
}

type positionsResponse struct {
	Account        string                   `json:"account"`
	Positions      []domain.StakingPosition `json:"positions"`
	PendingRewards decimal.Decimal          `json:"pending_rewards"`
	RewardRate     domain.RewardRate        `json:"reward_rate"`
}

type mutationResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type stakeRequest struct {
	Amount     string `json:"amount"`
	PeriodDays int    `json:"period_days"`
}

type unstakeRequest struct {
	PositionID string `json:"position_id"`
}

type loginRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	LoggedIn      bool   `json:"logged_in"`
	LoginRequired bool   `json:"login_required"`
	Reason        string `json:"reason,omitempty"`
}

func (s *Server) syncerFor(w http.ResponseWriter, r *http.Request) (AccountSyncer, string, bool) {
	account := strings.TrimSpace(r.PathValue("account"))
	syncer, ok := s.deps.Syncers[account]
	if !ok {
		writeJSON(w, http.StatusNotFound, mutationResponse{Status: "error", Message: "unknown account"})
		return nil, "", false
	}
	return syncer, account, true
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := make([]string, 0, len(s.deps.Syncers))
	for account := range s.deps.Syncers {
		accounts = append(accounts, account)
	}
	slices.Sort(accounts)
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	syncer, account, ok := s.syncerFor(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("refresh") != "" {
		if err := syncer.Refresh(r.Context(), account); err != nil {
			// failure is reported through last_error; the previous snapshot is still served
			s.deps.Logger.Debug("refresh on request failed", zap.String("account", account), zap.Error(err))
		}
	}

	resp := balanceResponse{
		State:    syncer.State(),
		Statuses: make(map[string]statusView, 3),
	}
	for _, kind := range []domain.Mutation{domain.MutationStake, domain.MutationUnstake, domain.MutationClaimRewards} {
		status, msg := syncer.Status(kind)
		resp.Statuses[kind.String()] = statusView{Status: status, Message: msg}
	}
	resp.LoginRequired, _ = s.loginState()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	syncer, account, ok := s.syncerFor(w, r)
	if !ok {
		return
	}
	st := syncer.State()
	writeJSON(w, http.StatusOK, positionsResponse{
		Account:        account,
		Positions:      st.Positions,
		PendingRewards: domain.PendingRewards(st.Positions),
		RewardRate:     st.RewardRate,
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	syncer, account, ok := s.syncerFor(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := balancesync.ParseAmount(req.Amount)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}

	res, err := syncer.Stake(r.Context(), account, amount, req.PeriodDays)
	s.writeMutation(w, res, err)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	syncer, account, ok := s.syncerFor(w, r)
	if !ok {
		return
	}
	var req unstakeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := syncer.Unstake(r.Context(), account, req.PositionID)
	s.writeMutation(w, res, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	syncer, account, ok := s.syncerFor(w, r)
	if !ok {
		return
	}

	res, err := syncer.ClaimRewards(r.Context(), account)
	s.writeMutation(w, res, err)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	required, reason := s.loginState()
	resp := sessionResponse{LoginRequired: required, Reason: reason}
	if s.deps.Session != nil {
		resp.LoggedIn = s.deps.Session.LoggedIn()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		writeJSON(w, http.StatusServiceUnavailable, mutationResponse{Status: "error", Message: "session not available"})
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, mutationResponse{Status: "error", Message: "token is required"})
		return
	}
	if err := s.deps.Session.SetToken(strings.TrimSpace(req.Token)); err != nil {
		s.deps.Logger.Error("failed to store session token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, mutationResponse{Status: "error", Message: clients.GenericFailureMessage})
		return
	}

	s.mu.Lock()
	s.loginRequired = false
	s.loginReason = ""
	s.mu.Unlock()

	if s.deps.OnLogin != nil {
		s.deps.OnLogin()
	}
	writeJSON(w, http.StatusOK, mutationResponse{Status: "success", Message: "logged in"})
}

func (s *Server) writeMutation(w http.ResponseWriter, res balancesync.MutationResult, err error) {
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Status: "success", Message: res.Message, RequestID: res.RequestID})
}

func (s *Server) writeMutationError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case balancesync.IsValidation(err), errors.Is(err, balancesync.ErrNoSnapshot):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, clients.ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, mutationResponse{Status: "error", Message: clients.DisplayMessage(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Status: "error", Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
