package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sweetshop/sweetshop-backend/internal/inventory"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"github.com/sweetshop/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/locks"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the cart reconciliation engine. Every mutation either produces a
// new consistent cart or fails without changing anything.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Add(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error)
	Update(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	View(ctx context.Context, userID uuid.UUID) (*CartView, error)
	Describe(ctx context.Context, cart *models.Cart) (*CartView, error)
}

// Options tunes engine behaviour.
type Options struct {
	StockCheck enums.StockCheckMode
}

type service struct {
	repo       CartRepository
	inventory  inventory.Store
	tx         txRunner
	locker     locks.Locker
	stockCheck enums.StockCheckMode
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, inv inventory.Store, tx txRunner, locker locks.Locker, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	mode := opts.StockCheck
	if mode == "" {
		mode = enums.StockCheckRequested
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid stock check mode %q", mode)
	}
	return &service{
		repo:       repo,
		inventory:  inv,
		tx:         tx,
		locker:     locker,
		stockCheck: mode,
	}, nil
}

// GetOrCreate returns the user's cart, creating an empty one on first use.
func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cart, err := s.repo.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	created, err := s.repo.Create(ctx, &models.Cart{UserID: userID})
	if err == nil {
		return created, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	// Another request created the cart first.
	cart, err = s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// Add puts quantity units of item into the cart, merging into an existing
// line without refreshing its price snapshot. Stock is checked but not taken.
func (s *service) Add(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, pkgerrors.InvalidQuantity(quantity)
	}
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(cart *models.Cart, inv inventory.Store) error {
		item, err := inv.FindItem(ctx, itemID)
		if err != nil {
			return err
		}

		idx := cart.FindItem(itemID)
		required := quantity
		if idx >= 0 && s.stockCheck == enums.StockCheckCombined {
			required += cart.Items[idx].Quantity
		}
		if item.AvailableQty < required {
			return pkgerrors.InsufficientStock(itemID.String(), required, item.AvailableQty)
		}

		if idx >= 0 {
			cart.Items[idx].Quantity += quantity
			return nil
		}
		cart.Items = append(cart.Items, models.CartItem{
			CartID:    cart.ID,
			ItemID:    itemID,
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
		})
		return nil
	})
}

// Update overwrites a line's quantity. Zero removes the line.
func (s *service) Update(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart, inv inventory.Store) error {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			return pkgerrors.ItemNotInCart(itemID.String())
		}
		if quantity < 0 {
			return pkgerrors.InvalidQuantity(quantity)
		}
		if quantity == 0 {
			cart.Items = removeLine(cart.Items, idx)
			return nil
		}

		item, err := inv.FindItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.AvailableQty < quantity {
			return pkgerrors.InsufficientStock(itemID.String(), quantity, item.AvailableQty)
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

// Remove drops the line for item. Removing an absent item is a no-op.
func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart, _ inventory.Store) error {
		if idx := cart.FindItem(itemID); idx >= 0 {
			cart.Items = removeLine(cart.Items, idx)
		}
		return nil
	})
}

// Clear empties the cart. The cart itself is kept.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart, _ inventory.Store) error {
		cart.Items = nil
		return nil
	})
}

// mutate loads the cart under the user's cart lock and inside a transaction,
// applies fn, recomputes the total and persists the result. Any error leaves
// the stored cart untouched.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func(cart *models.Cart, inv inventory.Store) error) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	lease, err := s.locker.Lock(ctx, locks.CartKey(userID.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	defer lease.Release(context.WithoutCancel(ctx))

	var result *models.Cart
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := fn(cart, s.inventory.WithTx(tx)); err != nil {
			return err
		}

		cart.Recompute()
		if err := repo.Save(ctx, cart); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
		}
		result = cart
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
		}
		return nil, err
	}
	return result, nil
}

func removeLine(items []models.CartItem, idx int) []models.CartItem {
	out := make([]models.CartItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}
