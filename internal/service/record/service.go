// Package record implements the record store: upload, lookup, listing and
// deletion of medical record files plus their metadata.
package record

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/repository"
	"github.com/medledger/medledger-api/internal/service/event"
	apperrors "github.com/medledger/medledger-api/pkg/errors"
	"github.com/medledger/medledger-api/pkg/hash"
)

// UploadInput carries a validated upload: the form fields plus the file
// stream. Size and type limits are enforced at the HTTP boundary.
type UploadInput struct {
	Title          string
	RecordType     string
	RecordDate     time.Time
	PatientAddress string
	FileName       string
	MimeType       string
	Size           int64
	Content        io.Reader
}

type RecordService interface {
	Create(ctx context.Context, in *UploadInput) (*model.MedicalRecord, error)
	Get(ctx context.Context, id int64) (*model.MedicalRecord, error)
	ListByPatient(ctx context.Context, address string) ([]*model.MedicalRecord, error)
	Delete(ctx context.Context, id int64) error
	Open(ctx context.Context, id int64) (*model.MedicalRecord, *os.File, error)
}

type Service struct {
	repo      repository.RecordRepository
	uploadDir string
	events    *event.Service
	logger    zerolog.Logger
}

func NewService(repo repository.RecordRepository, uploadDir string, events *event.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		uploadDir: uploadDir,
		events:    events,
		logger:    logger.With().Str("component", "records").Logger(),
	}
}

// Create stores the uploaded file under the upload directory, hashing the
// bytes while they stream to disk. The file hash is a real SHA-256 digest;
// the transaction hash is a synthetic Keccak-256 identifier.
func (s *Service) Create(ctx context.Context, in *UploadInput) (*model.MedicalRecord, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, apperrors.IOFailure("failed to create upload directory", err)
	}

	storedName := uuid.New().String() + filepath.Ext(in.FileName)
	path := filepath.Join(s.uploadDir, storedName)

	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.IOFailure("failed to create upload file", err)
	}

	digester := hash.NewDigester()
	written, err := io.Copy(io.MultiWriter(f, digester), in.Content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("path", path).Msg("failed to remove partial upload")
		}
		return nil, apperrors.IOFailure("failed to store upload", err)
	}

	txHash, err := hash.NewTransactionHash()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate transaction hash: %w", err))
	}

	rec := &model.MedicalRecord{
		Title:           in.Title,
		RecordType:      in.RecordType,
		RecordDate:      in.RecordDate,
		PatientAddress:  in.PatientAddress,
		FilePath:        path,
		FileName:        in.FileName,
		FileSize:        written,
		MimeType:        in.MimeType,
		FileHash:        digester.Hex(),
		TransactionHash: txHash,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	s.logger.Info().
		Int64("id", rec.ID).
		Str("patient", rec.PatientAddress).
		Str("type", rec.RecordType).
		Msg("record created")

	s.events.Publish(ctx, event.TypeRecordCreated, rec)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.MedicalRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, address string) ([]*model.MedicalRecord, error) {
	return s.repo.ListByPatient(ctx, address)
}

// Delete removes the underlying file best-effort, then the metadata. A file
// that cannot be removed is logged and does not abort the deletion. Grant
// cascade happens inside the repository under a single lock.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Error().Err(err).Str("path", rec.FilePath).Msg("failed to remove record file")
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if !deleted {
		return apperrors.NotFound("record", nil)
	}

	s.logger.Info().Int64("id", id).Msg("record deleted")
	s.events.Publish(ctx, event.TypeRecordDeleted, rec)
	return nil
}

// Open returns the record and its file for streaming.
func (s *Service) Open(ctx context.Context, id int64) (*model.MedicalRecord, *os.File, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(rec.FilePath)
	if err != nil {
		return nil, nil, apperrors.IOFailure("failed to open record file", err)
	}
	return rec, f, nil
}
