package repository

import (
	"context"

	"github.com/medledger/medledger-api/internal/model"
)

type UserRepository interface {
	// Create assigns the next id and persists the user. Fails with a
	// Conflict error if the address is already registered (case-insensitive).
	Create(ctx context.Context, user *model.User) error
	// GetByAddress does a case-insensitive lookup.
	GetByAddress(ctx context.Context, address string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

type RecordRepository interface {
	Create(ctx context.Context, record *model.MedicalRecord) error
	Get(ctx context.Context, id int64) (*model.MedicalRecord, error)
	// ListByPatient matches patient addresses case-insensitively and
	// returns records in insertion order (ascending id).
	ListByPatient(ctx context.Context, address string) ([]*model.MedicalRecord, error)
	// Delete removes the record and cascades over grants: the id is
	// removed from every referencing grant, and grants left with an empty
	// record set are deleted. Returns false if the id is unknown.
	Delete(ctx context.Context, id int64) (bool, error)
}

type GrantRepository interface {
	Create(ctx context.Context, grant *model.AccessGrant) error
	Get(ctx context.Context, id int64) (*model.AccessGrant, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ListByPatient(ctx context.Context, address string) ([]*model.AccessGrant, error)
	ListByDoctor(ctx context.Context, address string) ([]*model.AccessGrant, error)
}
