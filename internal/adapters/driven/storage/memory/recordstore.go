// Package memory provides in-memory adapter implementations for tests and
// ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory implementation of driven.RecordStore.
// It enforces the same unique-identifier constraint as the durable
// backends, so identifier races surface as per-index write errors here too.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.Record // keyed by storage id
	byIdent map[string]string        // identifier -> storage id

	// failWith, when set, makes BulkWrite fail wholesale. Test hook for
	// infrastructure failure behavior.
	failWith error
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]domain.Record),
		byIdent: make(map[string]string),
	}
}

// FailWith makes every subsequent BulkWrite fail wholesale with err.
// Pass nil to restore normal behavior.
func (s *RecordStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// FindOne returns at most one record matching the identifying filter.
func (s *RecordStore) FindOne(_ context.Context, filter domain.Filter) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Identifier != "" {
		if id, ok := s.byIdent[filter.Identifier]; ok {
			rec := s.records[id]
			return &rec, nil
		}
	}

	// Near-duplicate fallback for legacy records.
	for _, rec := range s.records {
		if filter.Matches(rec) {
			found := rec
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

// BulkWrite applies all intents, reporting per-index errors instead of
// aborting on the first failure. Intent order is irrelevant across records;
// each intent's success is independent of any other's.
func (s *RecordStore) BulkWrite(_ context.Context, intents []domain.WriteIntent) (*domain.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	res := &domain.BulkResult{
		InsertedIDs: make(map[int]string),
		UpsertedIDs: make(map[int]string),
	}

	for i, intent := range intents {
		switch intent.Op {
		case domain.OpInsert:
			s.applyInsert(i, intent, res)
		case domain.OpReplace:
			s.applyReplace(i, intent, res)
		default:
			res.WriteErrors = append(res.WriteErrors, domain.WriteError{
				Index:   i,
				Message: fmt.Sprintf("unknown op %q", intent.Op),
			})
		}
	}
	return res, nil
}

func (s *RecordStore) applyInsert(index int, intent domain.WriteIntent, res *domain.BulkResult) {
	rec := intent.Record
	if _, exists := s.byIdent[rec.Identifier]; exists {
		res.WriteErrors = append(res.WriteErrors, domain.WriteError{
			Index:   index,
			Code:    domain.DuplicateKeyCode,
			Message: fmt.Sprintf("duplicate identifier %s", rec.Identifier),
		})
		return
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.records[rec.ID] = rec
	s.byIdent[rec.Identifier] = rec.ID
	res.InsertedIDs[index] = rec.ID
	res.InsertedCount++
}

func (s *RecordStore) applyReplace(index int, intent domain.WriteIntent, res *domain.BulkResult) {
	rec := intent.Record

	var existing *domain.Record
	if id, ok := s.byIdent[intent.Filter.Identifier]; ok {
		e := s.records[id]
		existing = &e
	} else {
		for _, e := range s.records {
			if intent.Filter.Matches(e) {
				found := e
				existing = &found
				break
			}
		}
	}

	if existing == nil {
		// Upsert promotion: the target vanished between classification
		// and commit, so the replace is realized as a physical insert.
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		s.records[rec.ID] = rec
		s.byIdent[rec.Identifier] = rec.ID
		res.UpsertedIDs[index] = rec.ID
		res.UpsertedCount++
		return
	}

	rec.ID = existing.ID
	if existing.Identifier != rec.Identifier {
		delete(s.byIdent, existing.Identifier)
	}
	s.records[rec.ID] = rec
	s.byIdent[rec.Identifier] = rec.ID
	res.MatchedCount++
	res.ReplacedCount++
}

// Get returns a stored record by storage id. Test helper.
func (s *RecordStore) Get(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// GetByIdentifier returns a stored record by identifier. Test helper.
func (s *RecordStore) GetByIdentifier(identifier string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdent[identifier]
	if !ok {
		return domain.Record{}, false
	}
	return s.records[id], true
}

// Seed stores a record directly, bypassing the write path. Test helper.
// Assigns an id when the record carries none.
func (s *RecordStore) Seed(rec domain.Record) domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.records[rec.ID] = rec
	s.byIdent[rec.Identifier] = rec.ID
	return rec
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
