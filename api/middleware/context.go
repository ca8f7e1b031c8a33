package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxClientID contextKey = "client_id"
	ctxAnchor   contextKey = "anchor"
	ctxSubject  contextKey = "subject"
)

// ClientIDFromContext returns the authenticated principal's client id, if any.
func ClientIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClientID).(uuid.UUID); ok {
		return &v
	}
	return nil
}

// IsAnchor reports whether the authenticated principal operates across clients.
func IsAnchor(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxAnchor).(bool)
	return v
}

// SubjectFromContext returns the authenticated principal's subject.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubject).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal seeds the context with the authenticated principal.
func WithPrincipal(ctx context.Context, subject string, clientID *uuid.UUID, anchor bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubject, subject)
	ctx = context.WithValue(ctx, ctxAnchor, anchor)
	if clientID != nil {
		ctx = context.WithValue(ctx, ctxClientID, *clientID)
	}
	return ctx
}
