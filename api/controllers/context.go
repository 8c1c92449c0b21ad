package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sweetshop/sweetshop-backend/api/middleware"
	pkgerrors "github.com/sweetshop/sweetshop-backend/pkg/errors"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
)

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func withItemID(ctx context.Context, logg *logger.Logger, itemID uuid.UUID) context.Context {
	if logg == nil {
		return ctx
	}
	return logg.WithItemID(ctx, itemID.String())
}
