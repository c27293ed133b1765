package balancesync

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dyosync/internal/clients"
	"github.com/vadiminshakov/dyosync/internal/domain"
)

// MutationResult is returned by successful stake, unstake and claim calls.
type MutationResult struct {
	RequestID string
	Kind      domain.Mutation
	Message   string
	Result    clients.StakingResult
	// RefreshErr is set when the mutation succeeded but the follow-up
	// re-fetch did not.
	RefreshErr error
}

// ParseAmount parses user input into a stake amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, invalid("amount", "amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("amount", "amount must be a number")
	}
	return amount, nil
}

// Stake locks amount for periodDays. amount must be positive and not exceed
// the available balance of the loaded snapshot; otherwise nothing is sent.
func (s *Syncer) Stake(ctx context.Context, account string, amount decimal.Decimal, periodDays int) (MutationResult, error) {
	kind := domain.MutationStake
	record := s.newRecord(kind, account)
	record.Amount = amount.String()
	record.PeriodDays = periodDays

	if err := s.validateStake(account, amount, periodDays); err != nil {
		return MutationResult{}, s.reject(kind, record, err)
	}

	return s.mutate(ctx, kind, record, func(ctx context.Context) (clients.StakingResult, error) {
		return s.api.Stake(ctx, account, amount, periodDays)
	})
}

// Unstake withdraws a position whose lock period has ended.
func (s *Syncer) Unstake(ctx context.Context, account, positionID string) (MutationResult, error) {
	kind := domain.MutationUnstake
	record := s.newRecord(kind, account)
	record.PositionID = positionID

	if err := s.validateUnstake(account, positionID); err != nil {
		return MutationResult{}, s.reject(kind, record, err)
	}

	return s.mutate(ctx, kind, record, func(ctx context.Context) (clients.StakingResult, error) {
		return s.api.Unstake(ctx, account, positionID)
	})
}

// ClaimRewards collects accrued staking rewards. Requires positive pending rewards.
func (s *Syncer) ClaimRewards(ctx context.Context, account string) (MutationResult, error) {
	kind := domain.MutationClaimRewards
	record := s.newRecord(kind, account)

	if err := s.validateClaim(account); err != nil {
		return MutationResult{}, s.reject(kind, record, err)
	}

	return s.mutate(ctx, kind, record, func(ctx context.Context) (clients.StakingResult, error) {
		return s.api.ClaimRewards(ctx, account)
	})
}

func (s *Syncer) validateStake(account string, amount decimal.Decimal, periodDays int) error {
	if !amount.IsPositive() {
		return invalid("amount", "amount must be greater than zero")
	}
	if !slices.Contains(s.cfg.StakePeriods, periodDays) {
		return invalid("period_days", "unsupported staking period %d days", periodDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadedLocked(account); err != nil {
		return err
	}
	if amount.GreaterThan(s.snapshot.Available) {
		return invalid("amount", "insufficient balance: available %s",
			domain.FormatAmount(s.snapshot.Available, domain.PrimarySymbol))
	}
	return nil
}

func (s *Syncer) validateUnstake(account, positionID string) error {
	if strings.TrimSpace(positionID) == "" {
		return invalid("position_id", "position is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadedLocked(account); err != nil {
		return err
	}
	pos, ok := domain.FindPosition(s.positions, positionID)
	if !ok {
		return invalid("position_id", "unknown position %s", positionID)
	}
	if err := pos.CheckUnstake(s.now()); err != nil {
		return invalid("position_id", "%s", err.Error())
	}
	return nil
}

func (s *Syncer) validateClaim(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadedLocked(account); err != nil {
		return err
	}
	if !domain.PendingRewards(s.positions).IsPositive() {
		return invalid("rewards", "no rewards to claim")
	}
	return nil
}

// loadedLocked checks that account is the displayed account and its balance
// has been loaded. Callers hold s.mu.
func (s *Syncer) loadedLocked(account string) error {
	if strings.TrimSpace(account) == "" {
		return invalid("account", "wallet not connected")
	}
	if account != s.account || !s.hasSnap {
		return ErrNoSnapshot
	}
	return nil
}

func (s *Syncer) newRecord(kind domain.Mutation, account string) domain.MutationRecord {
	return domain.MutationRecord{
		RequestID: uuid.NewString(),
		Kind:      kind.String(),
		Account:   account,
		Timestamp: s.now().UTC(),
	}
}

func (s *Syncer) reject(kind domain.Mutation, record domain.MutationRecord, err error) error {
	record.Outcome = domain.OutcomeRejected
	record.Message = err.Error()
	s.journalRecord(record)
	s.metrics.ObserveMutation(record.Kind, string(domain.OutcomeRejected))

	if ind, ok := s.status[kind]; ok {
		ind.Fail(err.Error())
	}
	s.logger.Debug("mutation rejected locally",
		zap.String("kind", record.Kind), zap.String("account", record.Account), zap.Error(err))

	return err
}

func (s *Syncer) mutate(ctx context.Context, kind domain.Mutation, record domain.MutationRecord,
	call func(ctx context.Context) (clients.StakingResult, error)) (MutationResult, error) {
	ind := s.status[kind]
	ind.Saving()

	logger := s.logger.With(
		zap.String("kind", record.Kind),
		zap.String("account", record.Account),
		zap.String("request_id", record.RequestID))

	res, err := call(ctx)
	if err != nil {
		msg := clients.DisplayMessage(err)
		record.Outcome = domain.OutcomeFailed
		record.Message = msg
		s.journalRecord(record)
		s.metrics.ObserveMutation(record.Kind, string(domain.OutcomeFailed))
		ind.Fail(msg)
		logger.Error("mutation failed", zap.Error(err))

		if errors.Is(err, clients.ErrUnauthorized) {
			s.mu.Lock()
			current := s.account == record.Account
			s.mu.Unlock()
			s.handleUnauthorized(record.Kind, record.Account, current)
		}
		return MutationResult{}, errors.Wrapf(err, "%s", record.Kind)
	}

	msg := res.Message
	if msg == "" {
		msg = successMessage(kind)
	}
	record.Outcome = domain.OutcomeSucceeded
	record.Message = msg
	s.journalRecord(record)
	s.metrics.ObserveMutation(record.Kind, string(domain.OutcomeSucceeded))
	ind.Succeed(msg)
	logger.Info("mutation succeeded", zap.String("position_id", res.PositionID))

	result := MutationResult{
		RequestID: record.RequestID,
		Kind:      kind,
		Message:   msg,
		Result:    res,
	}
	if err := s.Refresh(ctx, record.Account); err != nil {
		logger.Warn("post-mutation refresh failed", zap.Error(err))
		result.RefreshErr = err
	}

	return result, nil
}

func (s *Syncer) journalRecord(record domain.MutationRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(record); err != nil {
		s.logger.Error("failed to journal mutation", zap.Error(err), zap.String("request_id", record.RequestID))
	}
}

func successMessage(kind domain.Mutation) string {
	switch kind {
	case domain.MutationStake:
		return "tokens staked"
	case domain.MutationUnstake:
		return "position unstaked"
	case domain.MutationClaimRewards:
		return "rewards claimed"
	default:
		return "done"
	}
}
