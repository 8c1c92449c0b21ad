package inventory

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"github.com/sweetshop/sweetshop-backend/pkg/types"
)

// ListParams selects one page of the catalog ordered by name.
type ListParams struct {
	Limit     int
	AfterName string
	AfterID   uuid.UUID
}

// SearchFilter narrows the catalog. Empty fields are ignored; Name and
// Category match case-insensitive substrings, prices are inclusive bounds.
type SearchFilter struct {
	Name     string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

func (f SearchFilter) normalized() SearchFilter {
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// CreateItemInput describes a new catalog entry.
type CreateItemInput struct {
	Name         string
	Category     string
	UnitPrice    decimal.Decimal
	AvailableQty int
	Description  string
	ImageURL     string
}

// UpdateItemInput carries the fields to change; nil fields are kept.
type UpdateItemInput struct {
	Name         *string
	Category     *string
	UnitPrice    *decimal.Decimal
	AvailableQty *int
	Description  *string
	ImageURL     *string
}

// ItemDTO is the API representation of a catalog item.
type ItemDTO struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Category          string      `json:"category"`
	UnitPrice         types.Money `json:"unit_price"`
	AvailableQuantity int         `json:"available_quantity"`
	Description       string      `json:"description,omitempty"`
	ImageURL          string      `json:"image_url,omitempty"`
	InStock           bool        `json:"in_stock"`
}

// ItemPage is one page of catalog results.
type ItemPage struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// ToDTO maps a model to its API shape.
func ToDTO(item models.InventoryItem) ItemDTO {
	return ItemDTO{
		ID:                item.ID.String(),
		Name:              item.Name,
		Category:          item.Category,
		UnitPrice:         types.NewMoney(item.UnitPrice),
		AvailableQuantity: item.AvailableQty,
		Description:       item.Description,
		ImageURL:          item.ImageURL,
		InStock:           item.AvailableQty > 0,
	}
}

// ToDTOs maps a slice of models.
func ToDTOs(items []models.InventoryItem) []ItemDTO {
	out := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, ToDTO(item))
	}
	return out
}
