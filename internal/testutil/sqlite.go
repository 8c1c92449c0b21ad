// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenSQLite returns a migrated, isolated in-memory database. A single
// connection keeps sqlite writers serialized the same way db.New does.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// OpenClient wraps OpenSQLite in a db.Client.
func OpenClient(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := OpenSQLite(t)
	return db.NewFromConn(conn), conn
}

// NewItem builds an unsaved catalog item.
func NewItem(name, price string, qty int) *models.InventoryItem {
	return &models.InventoryItem{
		Name:         name,
		Category:     "candy",
		UnitPrice:    decimal.RequireFromString(price),
		AvailableQty: qty,
	}
}

// SeedItem inserts a catalog item with the given price and stock.
func SeedItem(t *testing.T, conn *gorm.DB, name, price string, qty int) *models.InventoryItem {
	t.Helper()
	item := NewItem(name, price, qty)
	if err := conn.Create(item).Error; err != nil {
		t.Fatalf("seed item %s: %v", name, err)
	}
	return item
}

// StockOf reads the live stock level of an item.
func StockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var item models.InventoryItem
	if err := conn.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("load item %s: %v", id, err)
	}
	return item.AvailableQty
}
