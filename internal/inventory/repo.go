package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"gorm.io/gorm"
)

// ErrWouldGoNegative is the cause attached to InsufficientStock errors raised
// when a delta would push available_qty below zero.
var ErrWouldGoNegative = errors.New("inventory would go negative")

// Repository persists catalog items and applies stock deltas.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindItem loads a single item or returns ItemNotFound.
func (r *Repository) FindItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ItemNotFound(id.String())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return &item, nil
}

// FindItems loads every existing item in ids. Missing ids are absent from the map.
func (r *Repository) FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error) {
	out := make(map[uuid.UUID]models.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory items")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ApplyDelta adds delta to available_qty in one conditional statement. The
// floor check lives in the WHERE clause, so concurrent decrements can never
// oversell even without an external lock.
func (r *Repository) ApplyDelta(ctx context.Context, id uuid.UUID, delta int) error {
	if delta == 0 {
		_, err := r.FindItem(ctx, id)
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND available_qty + ? >= 0", id, delta).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", delta),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply inventory delta")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	item, err := r.FindItem(ctx, id)
	if err != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, ErrWouldGoNegative, "insufficient stock").
		WithDetails(pkgerrors.StockDetails{
			ItemID:    id.String(),
			Requested: -delta,
			Available: item.AvailableQty,
		})
}

// Create inserts a new catalog item.
func (r *Repository) Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "item name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
	}
	return item, nil
}

// Update saves every column of the provided item.
func (r *Repository) Update(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "item name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory item")
	}
	return item, nil
}

// Delete removes an item. Cart lines that reference it are left untouched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.InventoryItem{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete inventory item")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ItemNotFound(id.String())
	}
	return nil
}

// List returns up to params.Limit items ordered by (name, id), starting after the cursor.
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if params.AfterID != uuid.Nil {
		query = query.Where("(name > ?) OR (name = ? AND id > ?)", params.AfterName, params.AfterName, params.AfterID)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	var rows []models.InventoryItem
	if err := query.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory items")
	}
	return rows, nil
}

// Search filters the catalog by substring and price range.
func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]models.InventoryItem, error) {
	filter = filter.normalized()
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if filter.Name != "" {
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(filter.Name))
	}
	if filter.Category != "" {
		query = query.Where(`LOWER(category) LIKE ? ESCAPE '\'`, likePattern(filter.Category))
	}
	if filter.MinPrice != nil {
		query = query.Where("unit_price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("unit_price <= ?", *filter.MaxPrice)
	}
	var rows []models.InventoryItem
	if err := query.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search inventory items")
	}
	return rows, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
