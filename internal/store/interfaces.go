package store

import (
	"context"
	"errors"

	"storefront.chat/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// CompanyStore defines the contract for tenant data access
type CompanyStore interface {
	GetByID(ctx context.Context, id int64) (*model.Company, error)
	GetByPageID(ctx context.Context, pageID string) (*model.Company, error)
	Create(ctx context.Context, company *model.Company) error
	Update(ctx context.Context, company *model.Company) error
}

// DedupeStore remembers webhook message IDs for a bounded time.
type DedupeStore interface {
	// MarkSeen returns true the first time id is seen within the TTL.
	MarkSeen(ctx context.Context, id string) (bool, error)
	// Forget drops id so a redelivery is processed again.
	Forget(ctx context.Context, id string) error
}
