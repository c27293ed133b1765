package domain

import "time"

// Mutation represents the kind of user-initiated mutating request.
type Mutation int

const (
	MutationStake Mutation = iota
	MutationUnstake
	MutationClaimRewards
)

// mutation string constants to avoid magic strings
const (
	mutationStringStake        = "stake"
	mutationStringUnstake      = "unstake"
	mutationStringClaimRewards = "claim_rewards"
)

// String returns the string representation of the mutation
func (m Mutation) String() string {
	switch m {
	case MutationStake:
		return mutationStringStake
	case MutationUnstake:
		return mutationStringUnstake
	case MutationClaimRewards:
		return mutationStringClaimRewards
	default:
		return "unknown"
	}
}

// MutationFromString parses the string form produced by String.
func MutationFromString(s string) (Mutation, bool) {
	switch s {
	case mutationStringStake:
		return MutationStake, true
	case mutationStringUnstake:
		return MutationUnstake, true
	case mutationStringClaimRewards:
		return MutationClaimRewards, true
	}
	return 0, false
}

// MutationOutcome how a mutation attempt ended.
type MutationOutcome string

const (
	OutcomeRejected  MutationOutcome = "rejected" // failed client-side validation, nothing sent
	OutcomeSucceeded MutationOutcome = "succeeded"
	OutcomeFailed    MutationOutcome = "failed"
)

// MutationRecord journal entry for one mutation attempt.
type MutationRecord struct {
	RequestID  string          `json:"request_id"`
	Kind       string          `json:"kind"`
	Account    string          `json:"account"`
	Amount     string          `json:"amount,omitempty"`
	PeriodDays int             `json:"period_days,omitempty"`
	PositionID string          `json:"position_id,omitempty"`
	Outcome    MutationOutcome `json:"outcome"`
	Message    string          `json:"message,omitempty"`
	Timestamp  time.Time       `json:"ts"`
}

// MutationRecordEntry bundles a record with its log index.
type MutationRecordEntry struct {
	Index  uint64
	Record MutationRecord
}
