package jsonstore

import (
	"context"
	"strings"
	"time"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
)

type recordRepository struct {
	s *Store
}

func NewRecordRepository(s *Store) repository.RecordRepository {
	return &recordRepository{s: s}
}

func (r *recordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextRecordID
	s.nextRecordID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.records = append(s.records, cloneRecord(record))
	s.save()
	return nil
}

func (r *recordRepository) Get(ctx context.Context, id int64) (*model.MedicalRecord, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, apperrors.NotFound("record", nil)
}

// ListByPatient returns records in insertion order, which is ascending id
// since ids are assigned sequentially and never reused.
func (r *recordRepository) ListByPatient(ctx context.Context, address string) ([]*model.MedicalRecord, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*model.MedicalRecord
	for _, rec := range s.records {
		if strings.EqualFold(rec.PatientAddress, address) {
			records = append(records, cloneRecord(rec))
		}
	}
	return records, nil
}

// Delete removes the record and cascades over grants under a single lock:
// the id is dropped from every referencing grant, and a grant whose record
// set would become empty is deleted outright.
func (r *recordRepository) Delete(ctx context.Context, id int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, rec := range s.records {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	kept := s.grants[:0]
	for _, g := range s.grants {
		if !g.ContainsRecord(id) {
			kept = append(kept, g)
			continue
		}
		ids := make([]int64, 0, len(g.RecordIDs)-1)
		for _, rid := range g.RecordIDs {
			if rid != id {
				ids = append(ids, rid)
			}
		}
		if len(ids) == 0 {
			s.logger.Info().
				Int64("grant_id", g.ID).
				Int64("record_id", id).
				Msg("removing grant emptied by record deletion")
			continue
		}
		g.RecordIDs = ids
		kept = append(kept, g)
	}
	s.grants = kept

	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.save()
	return true, nil
}

func cloneRecord(rec *model.MedicalRecord) *model.MedicalRecord {
	c := *rec
	return &c
}
