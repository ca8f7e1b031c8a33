package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/responses"
	"github.com/torresline/eventgate/api/validators"
	"github.com/torresline/eventgate/internal/pools"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/pagination"
)

// CreatePool registers a new dispatch pool.
func CreatePool(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input pools.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pool, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, pool)
	}
}

// UpdatePool adjusts a pool's rate and concurrency budget. Workers pick the
// change up on their next budget refresh.
func UpdatePool(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "poolID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input pools.UpdateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pool, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pool)
	}
}

// GetPool loads one pool by id.
func GetPool(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "poolID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pool, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pool)
	}
}

// ListPools returns a cursor page of pools.
func ListPools(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, next := trimToPage(rows, page.Limit, func(p models.DispatchPool) pagination.Cursor {
			return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
		})
		responses.WriteSuccess(w, pagedResponse{Items: items, NextCursor: next})
	}
}

// SuspendPool zeroes a pool's budget so its jobs stop being claimed.
func SuspendPool(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return poolTransition(svc.Suspend, logg)
}

// ReactivatePool restores a suspended pool's configured budget.
func ReactivatePool(svc pools.Service, logg *logger.Logger) http.HandlerFunc {
	return poolTransition(svc.Reactivate, logg)
}

func poolTransition(
	fn func(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "poolID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pool, err := fn(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pool)
	}
}
