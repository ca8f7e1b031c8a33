package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/api/middleware"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
)

func ingestRequest(clientID *uuid.UUID, anchor bool, header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), "svc", clientID, anchor))
	if header != "" {
		req.Header.Set("X-Client-ID", header)
	}
	return req
}

func TestIngestClientIDScopedPrincipalAlwaysOwnClient(t *testing.T) {
	own := uuid.New()
	other := uuid.New()

	// the header never overrides a scoped principal's client
	got, err := ingestClientID(ingestRequest(&own, false, other.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != own {
		t.Fatalf("expected principal's own client %s, got %v", own, got)
	}
}

func TestIngestClientIDAnchorHeaderOverride(t *testing.T) {
	target := uuid.New()

	got, err := ingestClientID(ingestRequest(nil, true, target.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != target {
		t.Fatalf("expected header client %s, got %v", target, got)
	}

	got, err = ingestClientID(ingestRequest(nil, true, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("anchor without header should ingest unscoped, got %v", got)
	}
}

func TestIngestClientIDAnchorBadHeader(t *testing.T) {
	_, err := ingestClientID(ingestRequest(nil, true, "not-a-uuid"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestIngestClientIDUnscopedNonAnchorForbidden(t *testing.T) {
	_, err := ingestClientID(ingestRequest(nil, false, ""))
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden code, got %v", err)
	}
}
