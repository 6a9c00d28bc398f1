// Package positionjournal persists position transitions in a WAL. The
// log serves two purposes: open positions are rebuilt from it on
// restart, and closed positions stay in it as history even after they
// leave the active set.
package positionjournal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/zenlend/zenlend/internal/domain"
)

const (
	defaultJournalDir     = "./wal/positions"
	journalSegmentLimit   = 1000
	journalMaxSegments    = 100
	journalKeyPrefix      = "position_transition_"
	journalDirPermissions = 0o755
)

// Journal is a WAL-backed append-only log of position transitions.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// New opens (or creates) the journal under dir.
func New(dir string) (*Journal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}
	if err := os.MkdirAll(dir, journalDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "ensure journal directory %s", dir)
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position journal WAL")
	}

	return &Journal{wal: wal}, nil
}

// Append writes an applied transition to the log. The record ID is
// assigned here if the caller left it empty.
func (j *Journal) Append(record domain.TransitionRecord) error {
	if j == nil || j.wal == nil {
		return errors.New("position journal is not initialized")
	}
	if record.Owner == "" {
		return domain.ErrEmptyOwner
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal transition record")
	}

	key := fmt.Sprintf("%s%s", journalKeyPrefix, record.Owner)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Replay returns every transition in log order, oldest first.
func (j *Journal) Replay() ([]domain.TransitionRecord, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("position journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var records []domain.TransitionRecord
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}
		var record domain.TransitionRecord
		if err := json.Unmarshal(msg.Value, &record); err != nil {
			return nil, errors.Wrap(err, "decode transition record")
		}
		records = append(records, record)
	}
	return records, nil
}

// EntriesAfter returns transitions written after the given WAL index,
// for streaming consumers that resume from a checkpoint.
func (j *Journal) EntriesAfter(index uint64) ([]domain.TransitionEntry, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("position journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]domain.TransitionEntry, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, journalKeyPrefix) {
			continue
		}
		var record domain.TransitionRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode transition record")
		}
		entries = append(entries, domain.TransitionEntry{Index: idx, Record: record})
	}
	return entries, nil
}

// CurrentIndex returns the latest WAL index stored.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}

// RestorePositions folds a transition history back into the set of open
// positions. Closed positions drop out; their records remain history.
func RestorePositions(records []domain.TransitionRecord) map[string]*domain.Position {
	positions := make(map[string]*domain.Position)
	for _, record := range records {
		switch record.Kind {
		case domain.TransitionClose:
			delete(positions, record.Owner)
		default:
			pos, ok := positions[record.Owner]
			if !ok {
				pos = &domain.Position{Owner: record.Owner, CreatedAt: record.At}
				positions[record.Owner] = pos
			}
			pos.CollateralAmount = record.CollateralAfter
			pos.DebtAmount = record.DebtAfter
			pos.UpdatedAt = record.At
		}
	}

	// a position that ended empty without an explicit close record is
	// still closed
	for owner, pos := range positions {
		if pos.IsEmpty() {
			delete(positions, owner)
		}
	}
	return positions
}
