package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Store is the boundary the cart and checkout flows use to read and mutate
// stock. Implementations must apply deltas atomically and never let
// available_qty drop below zero.
type Store interface {
	WithTx(tx *gorm.DB) Store
	FindItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, delta int) error
}

// CatalogRepository covers catalog management on top of Store.
type CatalogRepository interface {
	Store
	Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	Update(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params ListParams) ([]models.InventoryItem, error)
	Search(ctx context.Context, filter SearchFilter) ([]models.InventoryItem, error)
}
