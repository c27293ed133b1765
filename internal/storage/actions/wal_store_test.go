package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

func TestWALStore_RecordAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Record(domain.MutationRecord{
		RequestID: "r1", Kind: domain.MutationStake.String(), Account: "alice",
		Amount: "10", PeriodDays: 30, Outcome: domain.OutcomeSucceeded, Timestamp: now,
	}))
	require.NoError(t, store.Record(domain.MutationRecord{
		RequestID: "r2", Kind: domain.MutationClaimRewards.String(), Account: "bob",
		Outcome: domain.OutcomeRejected, Message: "no rewards to claim", Timestamp: now,
	}))
	require.NoError(t, store.Record(domain.MutationRecord{
		RequestID: "r3", Kind: domain.MutationUnstake.String(), Account: "alice",
		PositionID: "p1", Outcome: domain.OutcomeFailed, Timestamp: now,
	}))

	entries, err := store.RecordsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "r2", entries[1].Record.RequestID)

	alice, err := store.ForAccount("alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, 30, alice[0].PeriodDays)
	assert.Equal(t, "p1", alice[1].PositionID)
}

func TestWALStore_RejectsInvalidRecords(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Record(domain.MutationRecord{Kind: "stake"}))
	assert.Error(t, store.Record(domain.MutationRecord{Kind: "swap", Account: "a"}))
	assert.Equal(t, uint64(0), store.CurrentIndex())
}
