package controllers

import (
	"net/http"

	"github.com/sweetshop/sweetshop-backend/api/responses"
	checkoutsvc "github.com/sweetshop/sweetshop-backend/internal/checkout"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
	"github.com/sweetshop/sweetshop-backend/pkg/types"
)

type checkoutResponse struct {
	CartID  string      `json:"cart_id"`
	Charged types.Money `json:"charged"`
	Lines   int         `json:"lines"`
	Units   int         `json:"units"`
	Status  string      `json:"status"`
}

// Checkout converts the caller's cart into stock decrements.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, checkoutResponse{
			CartID:  result.CartID.String(),
			Charged: types.NewMoney(result.Charged),
			Lines:   result.Lines,
			Units:   result.Units,
			Status:  result.Phase.String(),
		})
	}
}
