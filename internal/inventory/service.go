package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sweetshop/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/locks"
	"github.com/sweetshop/sweetshop-backend/pkg/pagination"
)

// Service exposes catalog browsing and management.
type Service interface {
	List(ctx context.Context, params pagination.Params) (*ItemPage, error)
	Search(ctx context.Context, filter SearchFilter) ([]ItemDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ItemDTO, error)
	Create(ctx context.Context, input CreateItemInput) (*ItemDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Purchase(ctx context.Context, id uuid.UUID, quantity int) (*ItemDTO, error)
	Restock(ctx context.Context, id uuid.UUID, quantity int) (*ItemDTO, error)
}

type service struct {
	repo   CatalogRepository
	locker locks.Locker
}

// NewService builds the catalog service.
func NewService(repo CatalogRepository, locker locks.Locker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	return &service{repo: repo, locker: locker}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ItemPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	query := ListParams{Limit: pagination.LimitWithBuffer(params.Limit)}
	if cursor != nil {
		query.AfterName = cursor.Key
		query.AfterID = cursor.ID
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	page := &ItemPage{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{Key: last.Name, ID: last.ID})
	}
	page.Items = ToDTOs(rows)
	return page, nil
}

func (s *service) Search(ctx context.Context, filter SearchFilter) ([]ItemDTO, error) {
	if filter.MinPrice != nil && filter.MinPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_price must be non-negative")
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_price must not exceed max_price")
	}
	rows, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ToDTOs(rows), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ItemDTO, error) {
	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*item)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateItemInput) (*ItemDTO, error) {
	item := &models.InventoryItem{
		Name:         strings.TrimSpace(input.Name),
		Category:     strings.TrimSpace(input.Category),
		UnitPrice:    input.UnitPrice,
		AvailableQty: input.AvailableQty,
		Description:  strings.TrimSpace(input.Description),
		ImageURL:     strings.TrimSpace(input.ImageURL),
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*created)
	return &dto, nil
}

// Update edits catalog fields. Stock changes go through the item lock so they
// cannot interleave with a checkout that is debiting the same item.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	lease, err := s.lockItem(ctx, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.AvailableQty != nil {
		item.AvailableQty = *input.AvailableQty
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.ImageURL != nil {
		item.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, item)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	lease, err := s.lockItem(ctx, id)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx))
	return s.repo.Delete(ctx, id)
}

// Purchase debits stock directly, outside of any cart.
func (s *service) Purchase(ctx context.Context, id uuid.UUID, quantity int) (*ItemDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.InvalidQuantity(quantity)
	}
	return s.applyDelta(ctx, id, -quantity)
}

func (s *service) Restock(ctx context.Context, id uuid.UUID, quantity int) (*ItemDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.InvalidQuantity(quantity)
	}
	return s.applyDelta(ctx, id, quantity)
}

func (s *service) applyDelta(ctx context.Context, id uuid.UUID, delta int) (*ItemDTO, error) {
	lease, err := s.lockItem(ctx, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	if err := s.repo.ApplyDelta(ctx, id, delta); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) lockItem(ctx context.Context, id uuid.UUID) (locks.Lease, error) {
	lease, err := s.locker.Lock(ctx, locks.ItemKey(id.String()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire item lock")
	}
	return lease, nil
}

func validateItem(item *models.InventoryItem) error {
	details := map[string]string{}
	if item.Name == "" {
		details["name"] = "is required"
	}
	if item.Category == "" {
		details["category"] = "is required"
	}
	if item.UnitPrice.IsNegative() {
		details["unit_price"] = "must be non-negative"
	}
	if item.AvailableQty < 0 {
		details["available_quantity"] = "must be non-negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid item").WithDetails(details)
	}
	return nil
}
