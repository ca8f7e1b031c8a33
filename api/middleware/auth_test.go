package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/torresline/eventgate/pkg/auth"
	"github.com/torresline/eventgate/pkg/config"
	"github.com/torresline/eventgate/pkg/logger"
)

func authTestConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "eventgate-test",
		ExpirationMinutes: 5,
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(authTestConfig(), logger.New(logger.Options{ServiceName: "test"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthSeedsPrincipal(t *testing.T) {
	clientID := uuid.New()
	token, err := pkgAuth.MintAccessToken(authTestConfig(), time.Now(), pkgAuth.AccessTokenPayload{
		Subject:  "svc-orders",
		ClientID: &clientID,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	var gotClient *uuid.UUID
	var gotAnchor bool
	handler := Auth(authTestConfig(), logger.New(logger.Options{ServiceName: "test"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotClient = ClientIDFromContext(r.Context())
			gotAnchor = IsAnchor(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotClient == nil || *gotClient != clientID {
		t.Fatalf("client id not seeded: %v", gotClient)
	}
	if gotAnchor {
		t.Fatal("scoped principal flagged as anchor")
	}
}

func TestRequireAnchorBlocksScopedPrincipal(t *testing.T) {
	clientID := uuid.New()
	logg := logger.New(logger.Options{ServiceName: "test"})

	handler := RequireAnchor(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "svc", &clientID, false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAnchorAllowsAnchor(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	called := false
	handler := RequireAnchor(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "admin", nil, true))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("anchor principal should pass, code=%d called=%v", rec.Code, called)
	}
}
