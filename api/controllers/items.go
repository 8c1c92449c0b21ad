package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sweetshop/sweetshop-backend/api/responses"
	"github.com/sweetshop/sweetshop-backend/api/validators"
	"github.com/sweetshop/sweetshop-backend/internal/inventory"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
	"github.com/sweetshop/sweetshop-backend/pkg/pagination"
	"github.com/sweetshop/sweetshop-backend/pkg/types"
)

const maxSearchTermLen = 100

type createItemRequest struct {
	Name              string      `json:"name" validate:"required,max=120"`
	Category          string      `json:"category" validate:"required,max=60"`
	UnitPrice         types.Money `json:"unit_price"`
	AvailableQuantity int         `json:"available_quantity" validate:"gte=0"`
	Description       string      `json:"description" validate:"max=2000"`
	ImageURL          string      `json:"image_url" validate:"omitempty,url"`
}

type updateItemRequest struct {
	Name              *string      `json:"name" validate:"omitempty,max=120"`
	Category          *string      `json:"category" validate:"omitempty,max=60"`
	UnitPrice         *types.Money `json:"unit_price"`
	AvailableQuantity *int         `json:"available_quantity" validate:"omitempty,gte=0"`
	Description       *string      `json:"description" validate:"omitempty,max=2000"`
	ImageURL          *string      `json:"image_url" validate:"omitempty,url"`
}

func (u updateItemRequest) toInput() inventory.UpdateItemInput {
	input := inventory.UpdateItemInput{
		Name:         u.Name,
		Category:     u.Category,
		AvailableQty: u.AvailableQuantity,
		Description:  u.Description,
		ImageURL:     u.ImageURL,
	}
	if u.UnitPrice != nil {
		price := u.UnitPrice.Decimal
		input.UnitPrice = &price
	}
	return input
}

// quantityRequest leaves range checks to the services so clients get
// INVALID_QUANTITY rather than a generic validation error.
type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// ItemsList returns the catalog a page at a time, ordered by name.
func ItemsList(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ItemsSearch filters by name or category substring and an inclusive price range.
func ItemsSearch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := inventory.SearchFilter{
			Name:     validators.SanitizeString(query.Get("name"), maxSearchTermLen),
			Category: validators.SanitizeString(query.Get("category"), maxSearchTermLen),
		}
		var err error
		if filter.MinPrice, err = validators.ParseQueryDecimal(r, "min_price"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.MaxPrice, err = validators.ParseQueryDecimal(r, "max_price"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.Search(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

func ItemsGet(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func ItemsCreate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Create(r.Context(), inventory.CreateItemInput{
			Name:         body.Name,
			Category:     body.Category,
			UnitPrice:    body.UnitPrice.Decimal,
			AvailableQty: body.AvailableQuantity,
			Description:  body.Description,
			ImageURL:     body.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ItemsUpdate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Update(r.Context(), id, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func ItemsDelete(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ItemsPurchase debits stock for a single item outside of any cart.
func ItemsPurchase(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return stockHandler(logg, svc.Purchase)
}

// ItemsRestock credits stock.
func ItemsRestock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return stockHandler(logg, svc.Restock)
}

func stockHandler(logg *logger.Logger, apply func(ctx context.Context, id uuid.UUID, quantity int) (*inventory.ItemDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := apply(r.Context(), id, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
