package service

import (
	"context"

	"identity-reconciliation/internal/models"
)

// ContactStore is the persistence the reconciliation logic needs. Every
// read excludes soft-deleted contacts.
type ContactStore interface {
	FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error)
	FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error)
	FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error)
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	InsertPrimary(ctx context.Context, email, phoneNumber *string) (*models.Contact, error)
	InsertSecondary(ctx context.Context, linkedID int64, email, phoneNumber *string) (*models.Contact, error)
	Relink(ctx context.Context, id, linkedID int64, precedence models.LinkPrecedence) error
	Promote(ctx context.Context, id int64) error
}

// Transactor runs a function as a single atomic unit against the store.
// Store calls must use the context handed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
