package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sweetshop/sweetshop-backend/internal/cart"
	"github.com/sweetshop/sweetshop-backend/internal/inventory"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"github.com/sweetshop/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/locks"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
	"github.com/sweetshop/sweetshop-backend/pkg/metrics"
	"gorm.io/gorm"
)

// lockAttempts bounds how often checkout re-locks when the cart gained a
// new item between the initial read and lock acquisition.
const lockAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service converts a cart into inventory decrements and an emptied cart.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*Result, error)
}

// Result describes a completed checkout.
type Result struct {
	CartID  uuid.UUID
	Charged decimal.Decimal
	Lines   int
	Units   int
	Phase   enums.CheckoutPhase
}

type service struct {
	tx        txRunner
	carts     cart.CartRepository
	inventory inventory.Store
	locker    locks.Locker
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	carts cart.CartRepository,
	inv inventory.Store,
	locker locks.Locker,
	logg *logger.Logger,
	checkoutMetrics *metrics.CheckoutMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        tx,
		carts:     carts,
		inventory: inv,
		locker:    locker,
		logg:      logg,
		metrics:   checkoutMetrics,
	}, nil
}

// Checkout validates every line against live stock, decrements stock for each
// line and clears the cart, all inside one transaction while the cart and every
// referenced item are locked.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	started := time.Now()
	ctx = s.logg.WithUserID(ctx, userID.String())
	tracker := newPhaseTracker()

	result, err := s.checkout(ctx, userID, tracker)
	if err == nil {
		tracker.advance(enums.CheckoutPhaseCleared)
		result.Phase = tracker.current
		s.metrics.Observe(metrics.OutcomeSuccess, "", time.Since(started))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id": result.CartID.String(),
			"charged": result.Charged.StringFixed(2),
			"lines":   result.Lines,
		}), "checkout.completed")
		return result, nil
	}

	if errors.Is(err, db.ErrTxAborted) {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout aborted, nothing was charged")
	}
	if errors.Is(err, db.ErrCommitFailed) || errors.Is(err, db.ErrRollbackFailed) {
		tracker.advance(enums.CheckoutPhaseFatal)
		fatal := pkgerrors.Wrap(pkgerrors.CodePartialCheckoutFailure, err, "inventory and cart may have diverged").
			WithDetails(map[string]any{"user_id": userID.String(), "phase": tracker.reached.String()})
		s.metrics.IncPartialFailure()
		s.metrics.Observe(metrics.OutcomeFatal, string(fatal.Code()), time.Since(started))
		s.logg.Alert(s.logg.WithField(ctx, "phase", tracker.reached.String()), "checkout.partial_failure", err)
		return nil, fatal
	}

	tracker.advance(enums.CheckoutPhaseRejected)
	if pkgerrors.As(err) == nil {
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout")
	}
	code := pkgerrors.CodeOf(err)
	s.metrics.Observe(metrics.OutcomeRejected, string(code), time.Since(started))
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"phase": tracker.reached.String(),
		"code":  string(code),
	}), "checkout.rejected")
	return nil, err
}

func (s *service) checkout(ctx context.Context, userID uuid.UUID, tracker *phaseTracker) (*Result, error) {
	snapshot, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		keys := lockKeys(userID, snapshot)
		lease, err := s.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire checkout locks")
		}

		result, current, err := s.commit(ctx, userID, snapshot, tracker)
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "checkout.lock_release_failed")
		}
		if !errors.Is(err, errCartChanged) {
			return result, err
		}
		snapshot = current
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout, retry")
}

var errCartChanged = errors.New("cart lines changed since lock keys were computed")

// commit runs the validation and commit passes inside one transaction. When
// the cart gained an item that is not covered by the held locks it returns
// errCartChanged together with the fresh cart.
func (s *service) commit(ctx context.Context, userID uuid.UUID, snapshot *models.Cart, tracker *phaseTracker) (*Result, *models.Cart, error) {
	var (
		result  *Result
		current *models.Cart
	)
	err := s.tx.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		inv := s.inventory.WithTx(tx)

		cart, err := carts.FindByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if !covered(snapshot, cart) {
			current = cart
			return errCartChanged
		}

		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		total := cart.Total()
		if !total.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeInvalidTotal, "cart total must be positive").
				WithDetails(map[string]any{"total": total.StringFixed(2)})
		}

		tracker.advance(enums.CheckoutPhaseValidating)
		if err := validate(ctx, inv, cart.Items); err != nil {
			return err
		}

		// Past validation the caller going away must not abort the commit.
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout cancelled before commit")
		}
		commitCtx := context.WithoutCancel(ctx)

		tracker.advance(enums.CheckoutPhaseCommitting)
		units := 0
		for _, line := range cart.Items {
			if err := inv.ApplyDelta(commitCtx, line.ItemID, -line.Quantity); err != nil {
				return err
			}
			units += line.Quantity
		}

		lines := len(cart.Items)
		cart.Items = nil
		cart.Recompute()
		if err := carts.Save(commitCtx, cart); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		result = &Result{
			CartID:  cart.ID,
			Charged: total,
			Lines:   lines,
			Units:   units,
		}
		return nil
	})
	return result, current, err
}

// validate checks every line before any stock is touched.
func validate(ctx context.Context, inv inventory.Store, lines []models.CartItem) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	items, err := inv.FindItems(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load items")
	}
	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok {
			return pkgerrors.ItemNotFound(line.ItemID.String())
		}
		if item.AvailableQty < line.Quantity {
			return pkgerrors.InsufficientStock(line.ItemID.String(), line.Quantity, item.AvailableQty)
		}
	}
	return nil
}

func lockKeys(userID uuid.UUID, cart *models.Cart) []string {
	keys := make([]string, 0, len(cart.Items)+1)
	keys = append(keys, locks.CartKey(userID.String()))
	for _, line := range cart.Items {
		keys = append(keys, locks.ItemKey(line.ItemID.String()))
	}
	sort.Strings(keys)
	return keys
}

// covered reports whether every item in current was locked via snapshot.
func covered(snapshot, current *models.Cart) bool {
	locked := make(map[uuid.UUID]struct{}, len(snapshot.Items))
	for _, line := range snapshot.Items {
		locked[line.ItemID] = struct{}{}
	}
	for _, line := range current.Items {
		if _, ok := locked[line.ItemID]; !ok {
			return false
		}
	}
	return true
}
