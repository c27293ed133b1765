package actions

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
	DefaultDir   = "./wal/actions"
	segmentLimit = 100
	maxSegments  = 10

	actionKeyPrefix = "action_"
)

// WALStore journals stake/unstake/claim attempts, including ones rejected
// before reaching the network.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed action journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "action_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init action WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Record appends a mutation record.
func (s *WALStore) Record(record domain.MutationRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("action store is not initialized")
	}
	if record.Account == "" {
		return fmt.Errorf("action record account is required")
	}
	if _, ok := domain.MutationFromString(record.Kind); !ok {
		return fmt.Errorf("unknown action kind %q", record.Kind)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal action record")
	}

	key := fmt.Sprintf("%s%s_%s", actionKeyPrefix, record.Kind, record.Account)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// RecordsAfter returns all records written after the provided WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]domain.MutationRecordEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("action store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.MutationRecordEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, actionKeyPrefix) {
			continue
		}

		var record domain.MutationRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode action record")
		}
		entries = append(entries, domain.MutationRecordEntry{Index: idx, Record: record})
	}

	return entries, nil
}

// ForAccount returns the records of a single account, oldest first.
func (s *WALStore) ForAccount(account string) ([]domain.MutationRecord, error) {
	entries, err := s.RecordsAfter(0)
	if err != nil {
		return nil, err
	}

	var out []domain.MutationRecord
	for _, e := range entries {
		if e.Record.Account == account {
			out = append(out, e.Record)
		}
	}
	return out, nil
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
		return errors.New("action store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
