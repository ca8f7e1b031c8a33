package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/responses"
	"github.com/torresline/eventgate/api/validators"
	"github.com/torresline/eventgate/internal/subscriptions"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/pagination"
)

// CreateSubscription registers a new webhook subscription.
func CreateSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input subscriptions.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

// UpdateSubscription replaces a subscription's mutable fields.
func UpdateSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input subscriptions.UpdateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// GetSubscription loads one subscription by id.
func GetSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// ListSubscriptions returns a cursor page, optionally filtered by status and
// client.
func ListSubscriptions(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := subscriptions.ListParams{Page: page}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseSubscriptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}
		if raw := r.URL.Query().Get("clientId"); raw != "" {
			clientID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid clientId"))
				return
			}
			params.ClientID = &clientID
		}

		rows, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, next := trimToPage(rows, page.Limit, func(s models.Subscription) pagination.Cursor {
			return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
		})
		responses.WriteSuccess(w, pagedResponse{Items: items, NextCursor: next})
	}
}

// PauseSubscription stops job creation for a subscription without deleting it.
func PauseSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionTransition(svc.Pause, logg)
}

// ResumeSubscription reactivates a paused subscription.
func ResumeSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionTransition(svc.Resume, logg)
}

func subscriptionTransition(
	fn func(ctx context.Context, id uuid.UUID) (*models.Subscription, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := fn(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
