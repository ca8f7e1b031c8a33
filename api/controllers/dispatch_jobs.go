package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/middleware"
	"github.com/torresline/eventgate/api/responses"
	"github.com/torresline/eventgate/internal/dispatch"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/pagination"
)

// JobReader is the read-only job surface the inspection endpoints need.
type JobReader interface {
	FindJobByID(ctx context.Context, id uuid.UUID) (*models.DispatchJob, error)
	ListJobs(ctx context.Context, filter dispatch.JobFilter, params pagination.Params) ([]models.DispatchJob, error)
	FindAttemptsByJob(ctx context.Context, jobID uuid.UUID) ([]models.DispatchJobAttempt, error)
}

// ListDispatchJobs returns a cursor page of jobs. Scoped principals only see
// jobs stamped with their own client id.
func ListDispatchJobs(reader JobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := dispatch.JobFilter{}
		if !middleware.IsAnchor(r.Context()) {
			filter.ClientID = middleware.ClientIDFromContext(r.Context())
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseDispatchStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}
		if raw := r.URL.Query().Get("poolId"); raw != "" {
			poolID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid poolId"))
				return
			}
			filter.PoolID = &poolID
		}
		if raw := r.URL.Query().Get("eventId"); raw != "" {
			eventID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid eventId"))
				return
			}
			filter.EventID = &eventID
		}

		rows, err := reader.ListJobs(r.Context(), filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dispatch jobs"))
			return
		}

		items, next := trimToPage(rows, page.Limit, func(j models.DispatchJob) pagination.Cursor {
			return pagination.Cursor{CreatedAt: j.CreatedAt, ID: j.ID}
		})
		responses.WriteSuccess(w, pagedResponse{Items: items, NextCursor: next})
	}
}

// GetDispatchJob loads one job by id.
func GetDispatchJob(reader JobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := loadVisibleJob(r, reader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, job)
	}
}

// GetDispatchJobAttempts returns the attempt history of one job.
func GetDispatchJobAttempts(reader JobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := loadVisibleJob(r, reader)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempts, err := reader.FindAttemptsByJob(r.Context(), job.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempts"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"jobId":    job.ID,
			"status":   job.Status,
			"attempts": attempts,
		})
	}
}

// loadVisibleJob resolves the path id and enforces client scoping. Jobs outside
// the principal's scope read as not found.
func loadVisibleJob(r *http.Request, reader JobReader) (*models.DispatchJob, error) {
	id, err := parseUUIDParam(r, "jobID")
	if err != nil {
		return nil, err
	}
	job, err := reader.FindJobByID(r.Context(), id)
	if errors.Is(err, dispatch.ErrJobNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch job not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispatch job")
	}
	if !middleware.IsAnchor(r.Context()) {
		client := middleware.ClientIDFromContext(r.Context())
		if client == nil || job.ClientID == nil || *job.ClientID != *client {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch job not found")
		}
	}
	return job, nil
}
