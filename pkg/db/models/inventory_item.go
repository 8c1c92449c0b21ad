package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is a catalog entry together with its live stock level.
// AvailableQty only changes through catalog management or atomic deltas.
type InventoryItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name         string          `gorm:"column:name;type:text;not null;uniqueIndex"`
	Category     string          `gorm:"column:category;type:text;not null;index"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	AvailableQty int             `gorm:"column:available_qty;not null;default:0;check:available_qty >= 0"`
	Description  string          `gorm:"column:description;type:text"`
	ImageURL     string          `gorm:"column:image_url;type:text"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string {
	return "inventory_items"
}

func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
