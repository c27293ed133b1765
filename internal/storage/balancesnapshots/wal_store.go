package balancesnapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/dyosync/internal/domain"
)

const (
	DefaultDir           = "./wal/balance"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "balance_snapshot_"
)

// WALStore persists applied balance snapshots in a WAL so the dashboard stream
// can replay them after a restart.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
	// latest applied snapshot per account, rebuilt from the log on open
	latest map[string]domain.BalanceSnapshot
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	s := &WALStore{wal: wal, latest: make(map[string]domain.BalanceSnapshot)}
	records, err := s.SnapshotsAfter(0)
	if err != nil {
		_ = wal.Close()
		return nil, errors.Wrap(err, "replay balance snapshot WAL")
	}
	for _, r := range records {
		s.latest[r.Snapshot.Account] = r.Snapshot
	}

	return s, nil
}

// Save writes the snapshot to WAL. Callers must ensure snapshot.Account is set.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("balance snapshot store is not initialized")
	}
	if snapshot.Account == "" {
		return fmt.Errorf("balance snapshot account is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal balance snapshot")
	}

	key := fmt.Sprintf("%s%s", snapshotKeyPrefix, snapshot.Account)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrap(err, "write balance snapshot")
	}
	s.latest[snapshot.Account] = snapshot

	return nil
}

// Latest returns the most recently saved snapshot of account.
func (s *WALStore) Latest(account string) (domain.BalanceSnapshot, bool) {
	if s == nil || s.wal == nil {
		return domain.BalanceSnapshot{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.latest[account]
	return snapshot, ok
}

// SnapshotsAfter returns all balance snapshots written after the provided WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("balance snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.BalanceSnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		// rotated-out segments leave gaps
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.BalanceSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode balance snapshot")
		}
		records = append(records, domain.BalanceSnapshotRecord{
			Index:    idx,
			Snapshot: snapshot,
		})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("balance snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
