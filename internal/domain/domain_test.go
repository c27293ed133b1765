package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceSnapshot_Display(t *testing.T) {
	s := NewBalanceSnapshot("abc123",
		decimal.RequireFromString("120.5"),
		decimal.RequireFromString("4"),
		decimal.RequireFromString("300"),
		decimal.RequireFromString("420.5"),
		time.Now())

	d := s.Display()
	assert.Equal(t, "120.50 DYO", d.Available)
	assert.Equal(t, "4.00 DYS", d.Secondary)
	assert.Equal(t, "300.00 DYO", d.Staked)
	assert.Equal(t, "420.50 DYO", d.Total)
	assert.True(t, s.Consistent())
}

func TestBalanceSnapshot_ConsistentIsInformational(t *testing.T) {
	s := BalanceSnapshot{
		Account:   "abc",
		Available: decimal.NewFromInt(1),
		Staked:    decimal.NewFromInt(1),
		Total:     decimal.NewFromInt(5),
	}
	assert.False(t, s.Consistent())
	// mismatching totals are still rendered verbatim
	assert.Equal(t, "5.00 DYO", s.Display().Total)
}

func TestBalanceSnapshot_SameBalancesIgnoresFetchTime(t *testing.T) {
	a := NewBalanceSnapshot("x", decimal.NewFromInt(1), decimal.Zero, decimal.Zero, decimal.NewFromInt(1), time.Now())
	b := a
	b.FetchedAt = a.FetchedAt.Add(time.Minute)
	assert.True(t, a.SameBalances(b))

	b.Staked = decimal.NewFromInt(2)
	assert.False(t, a.SameBalances(b))
	assert.True(t, BalanceSnapshot{}.IsZero())
}

func TestStakingPosition_CheckUnstake(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pos     StakingPosition
		wantErr string
	}{
		{
			name: "unlocked active position",
			pos:  StakingPosition{ID: "p1", EndTime: now.Add(-time.Hour), Status: PositionStatusActive},
		},
		{
			name: "ends exactly now",
			pos:  StakingPosition{ID: "p1", EndTime: now, Status: PositionStatusLocked},
		},
		{
			name:    "still locked",
			pos:     StakingPosition{ID: "p2", EndTime: now.Add(time.Hour), Status: PositionStatusLocked},
			wantErr: "locked until",
		},
		{
			name:    "already completed",
			pos:     StakingPosition{ID: "p3", EndTime: now.Add(-time.Hour), Status: PositionStatusCompleted},
			wantErr: "already completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.CheckUnstake(now)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStakingPosition_Remaining(t *testing.T) {
	now := time.Now()
	p := StakingPosition{EndTime: now.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, p.Remaining(now))
	assert.Equal(t, time.Duration(0), p.Remaining(now.Add(2*time.Minute)))
}

func TestPendingRewards(t *testing.T) {
	positions := []StakingPosition{
		{ID: "a", Rewards: decimal.RequireFromString("1.5"), Status: PositionStatusActive},
		{ID: "b", Rewards: decimal.RequireFromString("2"), Status: PositionStatusLocked},
		{ID: "c", Rewards: decimal.RequireFromString("100"), Status: PositionStatusCompleted},
	}
	assert.True(t, PendingRewards(positions).Equal(decimal.RequireFromString("3.5")))
	assert.True(t, PendingRewards(nil).IsZero())

	p, ok := FindPosition(positions, "b")
	require.True(t, ok)
	assert.Equal(t, PositionStatusLocked, p.Status)
	_, ok = FindPosition(positions, "zzz")
	assert.False(t, ok)
}

func TestMutation_StringRoundTrip(t *testing.T) {
	for _, m := range []Mutation{MutationStake, MutationUnstake, MutationClaimRewards} {
		parsed, ok := MutationFromString(m.String())
		require.True(t, ok)
		assert.Equal(t, m, parsed)
	}
	_, ok := MutationFromString("swap")
	assert.False(t, ok)
}

func TestResolveRewardRate(t *testing.T) {
	fallback := decimal.NewFromInt(12)

	r := ResolveRewardRate(nil, fallback)
	assert.Equal(t, RateSourceFallback, r.Source)
	assert.True(t, r.APY.Equal(fallback))

	live := decimal.RequireFromString("8.25")
	r = ResolveRewardRate(&live, fallback)
	assert.Equal(t, RateSourceLive, r.Source)
	assert.True(t, r.APY.Equal(live))
}

func TestStatusIndicator_AutoReset(t *testing.T) {
	s := NewStatusIndicator(20 * time.Millisecond)

	s.Saving()
	status, _ := s.Current()
	assert.Equal(t, StatusSaving, status)

	s.Fail("insufficient balance")
	status, msg := s.Current()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, "insufficient balance", msg)

	assert.Eventually(t, func() bool {
		status, _ := s.Current()
		return status == StatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestStatusIndicator_SavingIsNotReset(t *testing.T) {
	s := NewStatusIndicator(10 * time.Millisecond)
	s.Succeed("ok")
	s.Saving()

	time.Sleep(40 * time.Millisecond)
	status, _ := s.Current()
	assert.Equal(t, StatusSaving, status)
	s.Stop()
}
