// Package jsonstore implements the repository interfaces on top of a single
// JSON document. All state lives in memory; every mutation rewrites the
// document atomically (temp file + rename). A RWMutex serializes writers,
// and reads return copies, so callers never observe a mutation happening
// after their lookup.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/pkg/metrics"
)

// document is the on-disk shape of the store.
type document struct {
	Users   []*model.User          `json:"users"`
	Records []*model.MedicalRecord `json:"records"`
	Grants  []*model.AccessGrant   `json:"grants"`
}

type Store struct {
	mu   sync.RWMutex
	path string

	users   []*model.User
	records []*model.MedicalRecord
	grants  []*model.AccessGrant

	nextUserID   int64
	nextRecordID int64
	nextGrantID  int64

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Open loads the document at path, or starts empty when the file is absent.
// Malformed JSON is logged and the store falls back to empty; there is no
// integrity check beyond the decoder. Id counters are derived as
// max(existing ids)+1 per collection. The metrics argument may be nil.
func Open(path string, logger zerolog.Logger, m *metrics.Metrics) (*Store, error) {
	s := &Store{
		path:         path,
		nextUserID:   1,
		nextRecordID: 1,
		nextGrantID:  1,
		logger:       logger.With().Str("component", "jsonstore").Logger(),
		metrics:      m,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info().Str("path", path).Msg("no data file, starting with empty store")
			return s, nil
		}
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("malformed data file, starting with empty store")
		return s, nil
	}

	s.users = doc.Users
	s.records = doc.Records
	s.grants = doc.Grants

	for _, u := range s.users {
		if u.ID >= s.nextUserID {
			s.nextUserID = u.ID + 1
		}
	}
	for _, r := range s.records {
		if r.ID >= s.nextRecordID {
			s.nextRecordID = r.ID + 1
		}
	}
	for _, g := range s.grants {
		if g.ID >= s.nextGrantID {
			s.nextGrantID = g.ID + 1
		}
	}

	s.logger.Info().
		Int("users", len(s.users)).
		Int("records", len(s.records)).
		Int("grants", len(s.grants)).
		Msg("loaded store")

	s.updateGauges()
	return s, nil
}

// save writes the whole document to disk. Callers must hold the write lock.
// A failed save is logged but the in-memory mutation is not rolled back, so
// there is a known inconsistency window between memory and disk.
func (s *Store) save() {
	start := time.Now()
	err := s.write()
	if s.metrics != nil {
		s.metrics.StoreSaveLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.StoreSaveFailed.Inc()
		} else {
			s.metrics.StoreSaves.Inc()
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist store")
	}
	s.updateGauges()
}

func (s *Store) write() error {
	doc := document{
		Users:   s.users,
		Records: s.records,
		Grants:  s.grants,
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}

// Flush forces a snapshot to disk, used on graceful shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

func (s *Store) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.StoreEntities.WithLabelValues("users").Set(float64(len(s.users)))
	s.metrics.StoreEntities.WithLabelValues("records").Set(float64(len(s.records)))
	s.metrics.StoreEntities.WithLabelValues("grants").Set(float64(len(s.grants)))
}
