package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10

	headerRequestID = "X-Request-ID"
)

// TokenSource provides the bearer token for authenticated requests.
// An empty token means the user is not logged in.
type TokenSource interface {
	Token() string
}

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// APIClient talks to the platform HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
	now        func() time.Time
}

// NewAPIClient creates a client for the API rooted at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *zap.Logger) *APIClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

type balanceDetailResponse struct {
	Address      string          `json:"address"`
	DYO          decimal.Decimal `json:"dyo"`
	DYS          decimal.Decimal `json:"dys"`
	Staked       decimal.Decimal `json:"staked"`
	Total        decimal.Decimal `json:"total"`
	AvailableDYO decimal.Decimal `json:"available_dyo"`
}

type positionPayload struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	StartTime int64           `json:"start_time"`
	EndTime   int64           `json:"end_time"`
	Rewards   decimal.Decimal `json:"rewards"`
	IsActive  *bool           `json:"is_active,omitempty"`
	Status    string          `json:"status,omitempty"`
}

type positionsResponse struct {
	Positions []positionPayload `json:"positions"`
	APY       *decimal.Decimal  `json:"apy,omitempty"`
}

// StakingOverview positions of an account plus the APY reported by the server, if any.
type StakingOverview struct {
	Positions []domain.StakingPosition
	APY       *decimal.Decimal
}

type stakeRequest struct {
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	PeriodDays int             `json:"period_days"`
}

type unstakeRequest struct {
	Address    string `json:"address"`
	PositionID string `json:"position_id"`
}

type claimRequest struct {
	Address string `json:"address"`
}

// StakingResult response of the staking mutation endpoints.
type StakingResult struct {
	Success    bool             `json:"success"`
	PositionID string           `json:"position_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Rewards    *decimal.Decimal `json:"rewards,omitempty"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Profile user profile as exposed by /api/v1/user/profile.
type Profile struct {
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// LeaderboardEntry one artist on the tip leaderboard, ordered by TotalReceived.
type LeaderboardEntry struct {
	ArtistAddress string          `json:"artist_address"`
	TipCount      int64           `json:"tip_count"`
	TotalReceived decimal.Decimal `json:"total_received"`
	LastTip       time.Time       `json:"last_tip"`
}

// ContentItem search hit.
type ContentItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Artist string `json:"artist,omitempty"`
}

// BalanceDetail fetches the detailed balance of account.
func (c *APIClient) BalanceDetail(ctx context.Context, account string) (domain.BalanceSnapshot, error) {
	var resp balanceDetailResponse
	path := "/balance-detail/" + url.PathEscape(account)
	if err := c.do(ctx, "balance detail", http.MethodGet, path, authOptional, nil, &resp); err != nil {
		return domain.BalanceSnapshot{}, err
	}

	return domain.NewBalanceSnapshot(
		account,
		resp.AvailableDYO,
		resp.DYS,
		resp.Staked,
		resp.Total,
		c.now(),
	), nil
}

// StakingPositions lists staking positions of account.
func (c *APIClient) StakingPositions(ctx context.Context, account string) (StakingOverview, error) {
	var resp positionsResponse
	path := "/staking/positions/" + url.PathEscape(account)
	if err := c.do(ctx, "staking positions", http.MethodGet, path, authOptional, nil, &resp); err != nil {
		return StakingOverview{}, err
	}

	now := c.now()
	positions := make([]domain.StakingPosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		positions = append(positions, p.toDomain(now))
	}

	return StakingOverview{Positions: positions, APY: resp.APY}, nil
}

// Stake locks amount for periodDays.
func (c *APIClient) Stake(ctx context.Context, account string, amount decimal.Decimal, periodDays int) (StakingResult, error) {
	body := stakeRequest{Address: account, Amount: amount, PeriodDays: periodDays}
	return c.stakingCall(ctx, "stake", "/stake", body)
}

// Unstake releases a matured position.
func (c *APIClient) Unstake(ctx context.Context, account, positionID string) (StakingResult, error) {
	body := unstakeRequest{Address: account, PositionID: positionID}
	return c.stakingCall(ctx, "unstake", "/unstake", body)
}

// ClaimRewards claims accrued staking rewards.
func (c *APIClient) ClaimRewards(ctx context.Context, account string) (StakingResult, error) {
	return c.stakingCall(ctx, "claim rewards", "/staking/claim-rewards", claimRequest{Address: account})
}

func (c *APIClient) stakingCall(ctx context.Context, op, path string, body any) (StakingResult, error) {
	var result StakingResult
	if err := c.do(ctx, op, http.MethodPost, path, authRequired, body, &result); err != nil {
		return StakingResult{}, err
	}
	// some handlers answer 200 with success=false
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		if msg == "" {
			msg = GenericFailureMessage
		}
		return result, &APIError{Op: op, Status: http.StatusOK, Message: msg, Parsed: true}
	}
	return result, nil
}

// Profile fetches the profile of the logged-in user.
func (c *APIClient) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.do(ctx, "get profile", http.MethodGet, "/api/v1/user/profile", authRequired, nil, &p)
	return p, err
}

// UpdateProfile replaces the profile of the logged-in user.
func (c *APIClient) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	var updated Profile
	err := c.do(ctx, "update profile", http.MethodPut, "/api/v1/user/profile", authRequired, p, &updated)
	return updated, err
}

// UploadAvatar uploads an avatar image as multipart form data and returns the new avatar URL.
func (c *APIClient) UploadAvatar(ctx context.Context, filename string, image io.Reader) (string, error) {
	const op = "upload avatar"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		return "", errors.Wrap(err, "create multipart field")
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", errors.Wrap(err, "copy avatar payload")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "finish multipart body")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/user/avatar", authRequired, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.send(op, req, &resp); err != nil {
		return "", err
	}
	return resp.AvatarURL, nil
}

// TipLeaderboard returns the tip leaderboard.
func (c *APIClient) TipLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	path := "/api/v1/content/tips/leaderboard"
	if limit > 0 {
		path += "?limit=" + fmt.Sprint(limit)
	}
	var entries []LeaderboardEntry
	if err := c.do(ctx, "tip leaderboard", http.MethodGet, path, authRequired, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SearchContent runs a content search.
func (c *APIClient) SearchContent(ctx context.Context, query string) ([]ContentItem, error) {
	q := url.Values{}
	q.Set("q", query)
	var resp struct {
		Results []ContentItem `json:"results"`
	}
	if err := c.do(ctx, "search content", http.MethodGet, "/api/v1/search?"+q.Encode(), authOptional, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Health checks that the API answers.
func (c *APIClient) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", authNone, nil, nil)
}

func (c *APIClient) do(ctx context.Context, op, method, path string, auth authMode, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: marshal request", op)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, auth, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(op, req, out)
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, auth authMode, body io.Reader) (*http.Request, error) {
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if auth == authRequired && token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if auth != authNone && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *APIClient) send(op string, req *http.Request, out any) error {
	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", req.Header.Get(headerRequestID)),
		zap.Duration("took", c.now().Sub(started)))

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

func decodeAPIError(op string, resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg != "" {
			return &APIError{Op: op, Status: resp.StatusCode, Message: msg, Parsed: true}
		}
	}

	return &APIError{Op: op, Status: resp.StatusCode, Message: fallbackMessage(resp.StatusCode)}
}

func (p positionPayload) toDomain(now time.Time) domain.StakingPosition {
	pos := domain.StakingPosition{
		ID:        p.ID,
		Amount:    p.Amount,
		StartTime: time.Unix(p.StartTime, 0).UTC(),
		EndTime:   time.Unix(p.EndTime, 0).UTC(),
		Rewards:   p.Rewards,
		Status:    domain.PositionStatus(p.Status),
	}
	if pos.Status.IsValid() {
		return pos
	}

	switch {
	case p.IsActive != nil && !*p.IsActive:
		pos.Status = domain.PositionStatusCompleted
	case now.Before(pos.EndTime):
		pos.Status = domain.PositionStatusLocked
	default:
		pos.Status = domain.PositionStatusActive
	}
	return pos
}
