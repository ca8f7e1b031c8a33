package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/validators"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/pagination"
)

// pagedResponse wraps a listing with the cursor for the next page. An empty
// nextCursor means the listing is exhausted.
type pagedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

func parsePage(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// trimToPage drops the lookahead row and derives the next cursor.
func trimToPage[T any](rows []T, limit int, cursorOf func(T) pagination.Cursor) ([]T, string) {
	normalized := pagination.NormalizeLimit(limit)
	if len(rows) <= normalized {
		return rows, ""
	}
	rows = rows[:normalized]
	last := rows[len(rows)-1]
	return rows, pagination.EncodeCursor(cursorOf(last))
}
