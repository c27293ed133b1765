package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionStatus lifecycle state of a staking position.
type PositionStatus string

const (
	// PositionStatusActive funds are staked and accruing rewards.
	PositionStatusActive PositionStatus = "active"
	// PositionStatusLocked funds are staked and still inside the lock period.
	PositionStatusLocked PositionStatus = "locked"
	// PositionStatusCompleted position was unstaked.
	PositionStatusCompleted PositionStatus = "completed"
)

// IsValid checks if the PositionStatus value is valid.
func (s PositionStatus) IsValid() bool {
	switch s {
	case PositionStatusActive, PositionStatusLocked, PositionStatusCompleted:
		return true
	}
	return false
}

// StakingPosition server-tracked record of locked funds.
// Created by a stake action, mutated only by the server (reward accrual),
// completed by an unstake action.
type StakingPosition struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Rewards   decimal.Decimal `json:"rewards"`
	Status    PositionStatus  `json:"status"`
}

// Unlocked reports whether the lock period has ended at now.
func (p StakingPosition) Unlocked(now time.Time) bool {
	return !now.Before(p.EndTime)
}

// Remaining returns the time left until the lock ends, zero once unlocked.
func (p StakingPosition) Remaining(now time.Time) time.Duration {
	if p.Unlocked(now) {
		return 0
	}
	return p.EndTime.Sub(now)
}

// CheckUnstake validates that the position can be unstaked at now.
func (p StakingPosition) CheckUnstake(now time.Time) error {
	if p.Status == PositionStatusCompleted {
		return errors.New("position is already completed")
	}
	if !p.Unlocked(now) {
		return errors.Errorf("position is locked until %s", p.EndTime.UTC().Format(time.RFC3339))
	}
	return nil
}

// PendingRewards sums the rewards of all positions that are not completed.
func PendingRewards(positions []StakingPosition) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if p.Status == PositionStatusCompleted {
			continue
		}
		total = total.Add(p.Rewards)
	}
	return total
}

// FindPosition looks a position up by id.
func FindPosition(positions []StakingPosition, id string) (StakingPosition, bool) {
	for _, p := range positions {
		if p.ID == id {
			return p, true
		}
	}
	return StakingPosition{}, false
}
