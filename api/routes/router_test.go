package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torresline/eventgate/api/controllers"
	"github.com/torresline/eventgate/internal/dispatch"
	"github.com/torresline/eventgate/internal/pools"
	"github.com/torresline/eventgate/internal/subscriptions"
	pkgAuth "github.com/torresline/eventgate/pkg/auth"
	"github.com/torresline/eventgate/pkg/config"
	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubIngestStore struct{}

func (stubIngestStore) FindActiveSubscriptionsByEventCode(context.Context, string, string) ([]models.Subscription, error) {
	return nil, nil
}
func (stubIngestStore) InsertEventTx(*gorm.DB, *models.Event) error            { return nil }
func (stubIngestStore) InsertEventFeedTx(*gorm.DB, *models.EventFeed) error    { return nil }
func (stubIngestStore) InsertJobTx(*gorm.DB, *models.DispatchJob) error        { return nil }
func (stubIngestStore) InsertJobFeedTx(*gorm.DB, *models.DispatchJobFeed) error { return nil }
func (stubIngestStore) JobExistsByIdempotencyKeyTx(*gorm.DB, string) (bool, error) {
	return false, nil
}
func (stubIngestStore) EventExistsByDeduplicationIDTx(*gorm.DB, string) (bool, error) {
	return false, nil
}

type stubSubscriptionsService struct{}

func (stubSubscriptionsService) Create(context.Context, subscriptions.CreateInput) (*models.Subscription, error) {
	return &models.Subscription{ID: uuid.New()}, nil
}
func (stubSubscriptionsService) Update(context.Context, uuid.UUID, subscriptions.UpdateInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionsService) Get(context.Context, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionsService) List(context.Context, subscriptions.ListParams) ([]models.Subscription, error) {
	return nil, nil
}
func (stubSubscriptionsService) Pause(context.Context, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionsService) Resume(context.Context, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

type stubPoolsService struct{}

func (stubPoolsService) Create(context.Context, pools.CreateInput) (*models.DispatchPool, error) {
	return &models.DispatchPool{ID: uuid.New()}, nil
}
func (stubPoolsService) Update(context.Context, uuid.UUID, pools.UpdateInput) (*models.DispatchPool, error) {
	return &models.DispatchPool{}, nil
}
func (stubPoolsService) Get(context.Context, uuid.UUID) (*models.DispatchPool, error) {
	return &models.DispatchPool{}, nil
}
func (stubPoolsService) List(context.Context, pagination.Params) ([]models.DispatchPool, error) {
	return nil, nil
}
func (stubPoolsService) Suspend(context.Context, uuid.UUID) (*models.DispatchPool, error) {
	return &models.DispatchPool{}, nil
}
func (stubPoolsService) Reactivate(context.Context, uuid.UUID) (*models.DispatchPool, error) {
	return &models.DispatchPool{}, nil
}

type stubJobReader struct{}

func (stubJobReader) FindJobByID(context.Context, uuid.UUID) (*models.DispatchJob, error) {
	return nil, dispatch.ErrJobNotFound
}
func (stubJobReader) ListJobs(context.Context, dispatch.JobFilter, pagination.Params) ([]models.DispatchJob, error) {
	return nil, nil
}
func (stubJobReader) FindAttemptsByJob(context.Context, uuid.UUID) ([]models.DispatchJobAttempt, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	matcher := dispatch.NewMatcher(nil, "default", 30*time.Second)
	outbox, err := dispatch.NewOutbox(dispatch.OutboxParams{
		DB:      stubTxRunner{},
		Store:   stubIngestStore{},
		Matcher: matcher,
		Logger:  logg,
	})
	if err != nil {
		t.Fatalf("NewOutbox: %v", err)
	}

	return NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		Outbox:        outbox,
		Subscriptions: stubSubscriptionsService{},
		Pools:         stubPoolsService{},
		Jobs:          stubJobReader{},
		Pingers:       map[string]controllers.Pinger{"db": stubPinger{}},
	})
}

func scopedToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	clientID := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		Subject:  "svc-orders",
		ClientID: &clientID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func anchorToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		Subject: "ops-console",
		Anchor:  true,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestMetricsEndpointIsExposed(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+scopedToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for private ping got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAnchorScope(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	scoped := httptest.NewRequest(http.MethodGet, "/api/admin/v1/subscriptions/", nil)
	scoped.Header.Set("Authorization", "Bearer "+scopedToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, scoped)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for scoped principal got %d", resp.Code)
	}

	anchor := httptest.NewRequest(http.MethodGet, "/api/admin/v1/subscriptions/", nil)
	anchor.Header.Set("Authorization", "Bearer "+anchorToken(t, cfg))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, anchor)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for anchor listing got %d", resp.Code)
	}
}

func TestEventIngestAcceptsScopedPrincipal(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	body := `{"type":"order.created","source":"orders-service"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+scopedToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestEventIngestRejectsInvalidBody(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/", strings.NewReader(`{"source":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+scopedToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDispatchJobLookupScopedToPrincipal(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch-jobs/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+scopedToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job got %d", resp.Code)
	}
}
