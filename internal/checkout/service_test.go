package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/sweetshop-backend/internal/cart"
	"github.com/sweetshop/sweetshop-backend/internal/inventory"
	"github.com/sweetshop/sweetshop-backend/internal/testutil"
	"github.com/sweetshop/sweetshop-backend/pkg/db"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	"github.com/sweetshop/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/locks"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
	"github.com/sweetshop/sweetshop-backend/pkg/metrics"
	"gorm.io/gorm"
)

type fixture struct {
	conn     *gorm.DB
	carts    cart.Service
	checkout Service
	registry *prometheus.Registry
	logs     *bytes.Buffer
}

type fixtureOptions struct {
	mode   enums.StockCheckMode
	wrapTx    func(txRunner) txRunner
	wrapCarts func(cart.CartRepository) cart.CartRepository
	locker    locks.Locker
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	client, conn := testutil.OpenClient(t)
	locker := opts.locker
	if locker == nil {
		locker = locks.NewMemoryLocker(5 * time.Second)
	}
	cartRepo := cart.NewRepository(conn)
	invRepo := inventory.NewRepository(conn)

	cartSvc, err := cart.NewService(cartRepo, invRepo, client, locks.NewMemoryLocker(5*time.Second), cart.Options{StockCheck: opts.mode})
	require.NoError(t, err)

	var tx txRunner = client
	if opts.wrapTx != nil {
		tx = opts.wrapTx(tx)
	}
	var checkoutCarts cart.CartRepository = cartRepo
	if opts.wrapCarts != nil {
		checkoutCarts = opts.wrapCarts(cartRepo)
	}
	buf := &bytes.Buffer{}
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(reg)
	svc, err := NewService(tx, checkoutCarts, invRepo, locker, logger.New(logger.Options{ServiceName: "test", Output: buf}), m)
	require.NoError(t, err)

	return &fixture{conn: conn, carts: cartSvc, checkout: svc, registry: reg, logs: buf}
}

func (f *fixture) lines(t *testing.T, userID uuid.UUID) []models.CartItem {
	t.Helper()
	c, err := f.carts.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return c.Items
}

func TestCheckoutScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{mode: enums.StockCheckCombined})
	ctx := context.Background()
	user := uuid.New()
	a := testutil.SeedItem(t, f.conn, "A", "2.50", 5)

	_, err := f.carts.Add(ctx, user, a.ID, 3)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, user, a.ID, 4)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	_, err = f.carts.Update(ctx, user, a.ID, 5)
	require.NoError(t, err)

	result, err := f.checkout.Checkout(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "12.50", result.Charged.StringFixed(2))
	assert.Equal(t, 1, result.Lines)
	assert.Equal(t, 5, result.Units)
	assert.Equal(t, enums.CheckoutPhaseCleared, result.Phase)

	assert.Equal(t, 0, testutil.StockOf(t, f.conn, a.ID))
	c, err := f.carts.GetOrCreate(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalPrice.IsZero())
	assert.Equal(t, result.CartID, c.ID)
}

func TestCheckoutDecrementsEveryLine(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	user := uuid.New()
	fudge := testutil.SeedItem(t, f.conn, "Fudge", "3.00", 10)
	taffy := testutil.SeedItem(t, f.conn, "Taffy", "0.75", 4)

	_, err := f.carts.Add(ctx, user, fudge.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, user, taffy.ID, 4)
	require.NoError(t, err)

	result, err := f.checkout.Checkout(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "9.00", result.Charged.StringFixed(2))
	assert.Equal(t, 8, testutil.StockOf(t, f.conn, fudge.ID))
	assert.Equal(t, 0, testutil.StockOf(t, f.conn, taffy.ID))
	assert.Empty(t, f.lines(t, user))

	assert.Equal(t, float64(1), f.counter(t, "checkout_total", metrics.OutcomeSuccess))
}

func TestCheckoutInsufficientStockLeavesEverythingUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	user := uuid.New()
	first := testutil.SeedItem(t, f.conn, "First", "1.00", 10)
	second := testutil.SeedItem(t, f.conn, "Second", "2.00", 5)

	_, err := f.carts.Add(ctx, user, first.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, user, second.ID, 4)
	require.NoError(t, err)
	before := f.lines(t, user)

	require.NoError(t, f.conn.Model(&models.InventoryItem{}).Where("id = ?", second.ID).Update("available_qty", 3).Error)

	_, err = f.checkout.Checkout(ctx, user)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(pkgerrors.StockDetails)
	require.True(t, ok)
	assert.Equal(t, second.ID.String(), details.ItemID)
	assert.Equal(t, 4, details.Requested)
	assert.Equal(t, 3, details.Available)

	assert.Equal(t, 10, testutil.StockOf(t, f.conn, first.ID))
	assert.Equal(t, 3, testutil.StockOf(t, f.conn, second.ID))
	after := f.lines(t, user)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ItemID, after[i].ItemID)
		assert.Equal(t, before[i].Quantity, after[i].Quantity)
		assert.True(t, before[i].UnitPrice.Equal(after[i].UnitPrice))
	}
	assert.True(t, strings.Contains(f.logs.String(), "checkout.rejected"))
}

func TestCheckoutDeletedItemIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	user := uuid.New()
	kept := testutil.SeedItem(t, f.conn, "Kept", "1.00", 10)
	gone := testutil.SeedItem(t, f.conn, "Gone", "1.00", 10)

	for _, id := range []uuid.UUID{kept.ID, gone.ID} {
		_, err := f.carts.Add(ctx, user, id, 1)
		require.NoError(t, err)
	}
	require.NoError(t, f.conn.Delete(&models.InventoryItem{}, "id = ?", gone.ID).Error)

	_, err := f.checkout.Checkout(ctx, user)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeItemNotFound), "got %v", err)
	assert.Equal(t, 10, testutil.StockOf(t, f.conn, kept.ID))
	assert.Len(t, f.lines(t, user), 2)
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeEmptyCart), "missing cart: got %v", err)

	user := uuid.New()
	_, err = f.carts.GetOrCreate(ctx, user)
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, user)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeEmptyCart), "empty cart: got %v", err)
}

func TestCheckoutInvalidTotal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	user := uuid.New()
	free := testutil.SeedItem(t, f.conn, "Sample", "0.00", 10)

	_, err := f.carts.Add(ctx, user, free.ID, 2)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTotal), "got %v", err)
	assert.Equal(t, 10, testutil.StockOf(t, f.conn, free.ID))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	item := testutil.SeedItem(t, f.conn, "Limited", "5.00", 5)
	users := []uuid.UUID{uuid.New(), uuid.New()}
	for _, user := range users {
		_, err := f.carts.Add(ctx, user, item.ID, 3)
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(users))
	)
	start := make(chan struct{})
	for i, user := range users {
		wg.Add(1)
		go func(i int, user uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = f.checkout.Checkout(ctx, user)
		}(i, user)
	}
	close(start)
	wg.Wait()

	successes, rejections := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)
	assert.Equal(t, 2, testutil.StockOf(t, f.conn, item.ID))
}

type commitFailingTx struct {
	inner txRunner
}

func (c commitFailingTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := c.inner.WithTx(ctx, fn); err != nil {
		return err
	}
	return fmt.Errorf("%w: connection reset by peer", db.ErrCommitFailed)
}

func TestCheckoutCommitFailureIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{
		wrapTx: func(inner txRunner) txRunner { return commitFailingTx{inner: inner} },
	})
	ctx := context.Background()
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Nougat", "1.50", 5)
	_, err := f.carts.Add(ctx, user, item.ID, 2)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePartialCheckoutFailure), "got %v", err)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.True(t, errors.Is(err, db.ErrCommitFailed))

	logs := f.logs.String()
	assert.Contains(t, logs, `"alert":true`)
	assert.Contains(t, logs, "checkout.partial_failure")
	assert.Contains(t, logs, `"phase":"committing"`)

	assert.Equal(t, float64(1), f.counter(t, "checkout_total", metrics.OutcomeFatal))
	families, err := f.registry.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "checkout_partial_failures_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "partial failure counter not exported")
}

type rollbackFailingTx struct{}

func (rollbackFailingTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return errors.Join(errors.New("driver: bad connection"), fmt.Errorf("%w: tx done", db.ErrRollbackFailed))
}

func TestCheckoutRollbackFailureIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{
		wrapTx: func(txRunner) txRunner { return rollbackFailingTx{} },
	})
	ctx := context.Background()
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Toffee", "1.00", 5)
	_, err := f.carts.Add(ctx, user, item.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePartialCheckoutFailure), "got %v", err)
}

// cancelOnSave cancels the caller's context right after the cart is cleared,
// as a client dropping the connection just before commit would.
type cancelOnSave struct {
	cart.CartRepository
	cancel context.CancelFunc
}

func (c cancelOnSave) WithTx(tx *gorm.DB) cart.CartRepository {
	return cancelOnSave{CartRepository: c.CartRepository.WithTx(tx), cancel: c.cancel}
}

func (c cancelOnSave) Save(ctx context.Context, m *models.Cart) error {
	err := c.CartRepository.Save(ctx, m)
	c.cancel()
	return err
}

func TestCheckoutSurvivesCallerCancellationDuringCommit(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, fixtureOptions{
		wrapCarts: func(inner cart.CartRepository) cart.CartRepository {
			return cancelOnSave{CartRepository: inner, cancel: cancel}
		},
	})
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Fudge", "2.00", 5)
	_, err := f.carts.Add(context.Background(), user, item.ID, 3)
	require.NoError(t, err)

	result, err := f.checkout.Checkout(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "6.00", result.Charged.StringFixed(2))
	assert.Equal(t, 2, testutil.StockOf(t, f.conn, item.ID))
	assert.Empty(t, f.lines(t, user))

	assert.NotContains(t, f.logs.String(), `"alert":true`)
	assert.Equal(t, float64(0), f.counter(t, "checkout_total", metrics.OutcomeFatal))
}

func TestCheckoutCancelledBeforeCommitChangesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Praline", "1.00", 5)
	_, err := f.carts.Add(context.Background(), user, item.ID, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.checkout.Checkout(ctx, user)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsFatal(err), "got %v", err)
	assert.False(t, pkgerrors.Is(err, pkgerrors.CodePartialCheckoutFailure))
	assert.Equal(t, 5, testutil.StockOf(t, f.conn, item.ID))
	assert.Len(t, f.lines(t, user), 1)
	assert.NotContains(t, f.logs.String(), `"alert":true`)
}

type abortedTx struct{}

func (abortedTx) WithTx(context.Context, func(tx *gorm.DB) error) error {
	return fmt.Errorf("%w: %v", db.ErrTxAborted, context.Canceled)
}

func TestCheckoutAbortedCommitIsRetryableNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{
		wrapTx: func(txRunner) txRunner { return abortedTx{} },
	})
	ctx := context.Background()
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Brittle", "1.00", 5)
	_, err := f.carts.Add(ctx, user, item.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency), "got %v", err)
	assert.False(t, pkgerrors.IsFatal(err))
	assert.NotContains(t, f.logs.String(), "checkout.partial_failure")
	assert.Equal(t, float64(0), f.counter(t, "checkout_total", metrics.OutcomeFatal))
	assert.Equal(t, float64(1), f.counter(t, "checkout_total", metrics.OutcomeRejected))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, ...string) (locks.Lease, error) {
	return nil, locks.ErrLockTimeout
}

func TestCheckoutLockTimeoutIsDependencyError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{locker: failingLocker{}})
	ctx := context.Background()
	user := uuid.New()
	item := testutil.SeedItem(t, f.conn, "Caramel", "1.00", 5)
	_, err := f.carts.Add(ctx, user, item.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency), "got %v", err)
	assert.True(t, errors.Is(err, locks.ErrLockTimeout))
	assert.Equal(t, 5, testutil.StockOf(t, f.conn, item.ID))
}

func TestCheckoutRejectsNilUser(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.checkout.Checkout(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestLockKeysAreSortedAndIncludeCart(t *testing.T) {
	user := uuid.New()
	a, b := uuid.New(), uuid.New()
	keys := lockKeys(user, &models.Cart{Items: []models.CartItem{{ItemID: b}, {ItemID: a}}})
	require.Len(t, keys, 3)
	assert.Contains(t, keys, locks.CartKey(user.String()))
	assert.Contains(t, keys, locks.ItemKey(a.String()))
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestCovered(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	snapshot := &models.Cart{Items: []models.CartItem{{ItemID: a}, {ItemID: b}}}

	assert.True(t, covered(snapshot, &models.Cart{Items: []models.CartItem{{ItemID: a}}}))
	assert.True(t, covered(snapshot, &models.Cart{}))
	assert.False(t, covered(snapshot, &models.Cart{Items: []models.CartItem{{ItemID: uuid.New()}}}))
}

func TestPhaseTracker(t *testing.T) {
	tracker := newPhaseTracker()
	assert.False(t, tracker.advance(enums.CheckoutPhaseCleared))
	assert.True(t, tracker.advance(enums.CheckoutPhaseValidating))
	assert.True(t, tracker.advance(enums.CheckoutPhaseCommitting))
	assert.True(t, tracker.advance(enums.CheckoutPhaseFatal))
	assert.Equal(t, enums.CheckoutPhaseFatal, tracker.current)
	assert.Equal(t, enums.CheckoutPhaseCommitting, tracker.reached)
	assert.False(t, tracker.advance(enums.CheckoutPhaseCleared))
}

// counter sums the named counter across series whose outcome label matches.
func (f *fixture) counter(t *testing.T, name, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					total += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
