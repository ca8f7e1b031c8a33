package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/middleware"
	"github.com/torresline/eventgate/api/responses"
	"github.com/torresline/eventgate/api/validators"
	"github.com/torresline/eventgate/internal/dispatch"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/logger"
)

type eventRequest struct {
	Type            string          `json:"type" validate:"required,max=255"`
	Source          string          `json:"source" validate:"required,max=255"`
	Subject         string          `json:"subject,omitempty" validate:"omitempty,max=255"`
	SpecVersion     string          `json:"specVersion,omitempty"`
	Time            *time.Time      `json:"time,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	CorrelationID   string          `json:"correlationId,omitempty" validate:"omitempty,max=255"`
	CausationID     string          `json:"causationId,omitempty" validate:"omitempty,max=255"`
	DeduplicationID string          `json:"deduplicationId,omitempty" validate:"omitempty,max=255"`
	MessageGroup    string          `json:"messageGroup,omitempty" validate:"omitempty,max=255"`
	ContextData     json.RawMessage `json:"contextData,omitempty"`
}

type eventBatchRequest struct {
	Events []eventRequest `json:"events" validate:"required,min=1,dive"`
}

type ingestResponse struct {
	Outcomes []dispatch.ItemOutcome `json:"outcomes"`
}

func (req *eventRequest) toInput(clientID *uuid.UUID) dispatch.EventInput {
	return dispatch.EventInput{
		Type:            req.Type,
		Source:          req.Source,
		Subject:         req.Subject,
		SpecVersion:     req.SpecVersion,
		Time:            req.Time,
		Data:            req.Data,
		CorrelationID:   req.CorrelationID,
		CausationID:     req.CausationID,
		DeduplicationID: req.DeduplicationID,
		MessageGroup:    req.MessageGroup,
		ContextData:     req.ContextData,
		ClientID:        clientID,
	}
}

// ingestClientID resolves the client scope stamped on ingested events. Scoped
// principals always get their own client; anchors may act for a specific
// client via the X-Client-ID header.
func ingestClientID(r *http.Request) (*uuid.UUID, error) {
	if client := middleware.ClientIDFromContext(r.Context()); client != nil {
		return client, nil
	}
	if !middleware.IsAnchor(r.Context()) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "principal carries no client scope")
	}
	header := r.Header.Get("X-Client-ID")
	if header == "" {
		return nil, nil
	}
	id, err := uuid.Parse(header)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid X-Client-ID header")
	}
	return &id, nil
}

// IngestEvent accepts a single event and returns its ingest outcome.
func IngestEvent(outbox *dispatch.Outbox, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		clientID, err := ingestClientID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := outbox.IngestAndDispatch(r.Context(), []dispatch.EventInput{req.toInput(clientID)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		outcome := result.Outcomes[0]
		if outcome.Status == dispatch.OutcomeError {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, outcome.Error))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, outcome)
	}
}

// IngestEventBatch accepts up to the configured maximum of events and returns
// one outcome per item. The batch commits or rolls back as a whole; a failed
// batch returns 207 with outcomes that identify the offending item so callers
// can fix it and resubmit.
func IngestEventBatch(outbox *dispatch.Outbox, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(req.Events) > outbox.MaxBatchEvents() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "batch exceeds maximum size").WithDetails(map[string]any{
					"max": outbox.MaxBatchEvents(),
				}))
			return
		}

		clientID, err := ingestClientID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]dispatch.EventInput, 0, len(req.Events))
		for i := range req.Events {
			inputs = append(inputs, req.Events[i].toInput(clientID))
		}

		result, err := outbox.IngestAndDispatch(r.Context(), inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		status := http.StatusAccepted
		if result.Failed() {
			status = http.StatusMultiStatus
		}
		responses.WriteSuccessStatus(w, status, ingestResponse{Outcomes: result.Outcomes})
	}
}
