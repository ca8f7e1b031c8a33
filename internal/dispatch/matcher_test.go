package dispatch

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
)

func TestMatchCreatesOneJobPerSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := newTestEvent(now)
	subs := []models.Subscription{
		newTestSubscription("SUB-A"),
		newTestSubscription("SUB-B"),
		newTestSubscription("SUB-C"),
	}

	jobs, err := newTestMatcher().Match(event, subs, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	seen := map[string]bool{}
	for _, job := range jobs {
		if job.EventID != event.ID {
			t.Fatalf("job bound to wrong event %s", job.EventID)
		}
		if job.Status != enums.DispatchQueued {
			t.Fatalf("expected QUEUED, got %s", job.Status)
		}
		if seen[job.IdempotencyKey] {
			t.Fatalf("duplicate idempotency key %s", job.IdempotencyKey)
		}
		seen[job.IdempotencyKey] = true
	}
}

func TestMatchNoSubscriptionsYieldsNoJobs(t *testing.T) {
	now := time.Now().UTC()
	jobs, err := newTestMatcher().Match(newTestEvent(now), nil, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestMatchDropsStaleEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := newTestEvent(now.Add(-2 * time.Hour))
	sub := newTestSubscription("SUB-A")
	sub.MaxAgeSeconds = 3600

	jobs, err := newTestMatcher().Match(event, []models.Subscription{sub}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected stale event to be dropped, got %d jobs", len(jobs))
	}
}

func TestMatchEnforcesClientScope(t *testing.T) {
	now := time.Now().UTC()
	clientA := uuid.New()
	clientB := uuid.New()

	event := newTestEvent(now)
	event.ClientID = &clientA

	scopedOther := newTestSubscription("SCOPED-OTHER")
	scopedOther.ClientScoped = true
	scopedOther.ClientID = &clientB

	scopedSame := newTestSubscription("SCOPED-SAME")
	scopedSame.ClientScoped = true
	scopedSame.ClientID = &clientA

	anchor := newTestSubscription("ANCHOR")

	jobs, err := newTestMatcher().Match(event, []models.Subscription{scopedOther, scopedSame, anchor}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.SubscriptionID == scopedOther.ID {
			t.Fatal("cross-client subscription received a job")
		}
	}
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	eventID := uuid.New()
	subID := uuid.New()

	first := IdempotencyKey(eventID, subID)
	second := IdempotencyKey(eventID, subID)
	if first != second {
		t.Fatalf("key not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex, got %q", first)
	}
	if first == IdempotencyKey(eventID, uuid.New()) {
		t.Fatal("different subscriptions produced the same key")
	}
}

func TestMatchAppliesDelayAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := newTestSubscription("DELAYED")
	sub.DelaySeconds = 60
	sub.MaxAgeSeconds = 7200

	jobs, err := newTestMatcher().Match(newTestEvent(now), []models.Subscription{sub}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if !job.ScheduledFor.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected scheduledFor %s, got %s", now.Add(time.Minute), job.ScheduledFor)
	}
	if job.ExpiresAt == nil || !job.ExpiresAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("unexpected expiresAt %v", job.ExpiresAt)
	}
}

func TestMatchCustomConfigOverridesTarget(t *testing.T) {
	now := time.Now().UTC()
	sub := newTestSubscription("CONFIGURED")
	sub.CustomConfig = json.RawMessage(`[
		{"key":"target","value":"https://override.example.com/hook"},
		{"key":"contentType","value":"application/cloudevents+json"},
		{"key":"tenant","value":"acme"}
	]`)

	jobs, err := newTestMatcher().Match(newTestEvent(now), []models.Subscription{sub}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	job := jobs[0]
	if !strings.HasPrefix(job.TargetURL, "https://override.example.com/hook") {
		t.Fatalf("target not overridden: %s", job.TargetURL)
	}
	if !strings.Contains(job.TargetURL, "tenant=acme") {
		t.Fatalf("query param missing: %s", job.TargetURL)
	}
	if job.PayloadContentType != "application/cloudevents+json" {
		t.Fatalf("content type not overridden: %s", job.PayloadContentType)
	}
}

func TestMatchDataOnlyPayload(t *testing.T) {
	now := time.Now().UTC()
	event := newTestEvent(now)
	event.Data = json.RawMessage(`{"orderId":"123"}`)

	dataOnly := newTestSubscription("DATA-ONLY")
	dataOnly.DataOnly = true
	wrapped := newTestSubscription("WRAPPED")

	jobs, err := newTestMatcher().Match(event, []models.Subscription{dataOnly, wrapped}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if string(jobs[0].Payload) != `{"orderId":"123"}` {
		t.Fatalf("data-only payload altered: %s", jobs[0].Payload)
	}

	var envelope map[string]any
	if err := json.Unmarshal(jobs[1].Payload, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["id"] != event.ID.String() {
		t.Fatalf("envelope id mismatch: %v", envelope["id"])
	}
	if envelope["type"] != event.Type {
		t.Fatalf("envelope type mismatch: %v", envelope["type"])
	}
}

func TestMessageGroupDerivation(t *testing.T) {
	now := time.Now().UTC()
	matcher := newTestMatcher()

	event := newTestEvent(now)
	event.MessageGroup = "order-42"

	sub := newTestSubscription("GROUPED")
	sub.MessageGroup = "orders"

	jobs, err := matcher.Match(event, []models.Subscription{sub}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if jobs[0].MessageGroup != "orders:order-42" {
		t.Fatalf("unexpected message group %q", jobs[0].MessageGroup)
	}

	event.MessageGroup = ""
	sub.MessageGroup = ""
	jobs, err = matcher.Match(event, []models.Subscription{sub}, now)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if jobs[0].MessageGroup != sub.Code {
		t.Fatalf("expected fallback to subscription code, got %q", jobs[0].MessageGroup)
	}
}

func newTestMatcher() *Matcher {
	return NewMatcher(AnchorAuthorizer{}, "default", 30*time.Second)
}

func newTestEvent(at time.Time) *models.Event {
	return &models.Event{
		ID:          uuid.New(),
		SpecVersion: "1.0",
		Type:        "order.created",
		Source:      "orders-service",
		Time:        at,
		Data:        json.RawMessage(`{"ok":true}`),
	}
}

func newTestSubscription(code string) models.Subscription {
	return models.Subscription{
		ID:                uuid.New(),
		Code:              code,
		EventTypeBindings: json.RawMessage(`[{"code":"order.created"}]`),
		Target:            "https://hooks.example.com/" + code,
		DispatchPoolID:    uuid.New(),
		Mode:              enums.ModeImmediate,
		TimeoutSeconds:    30,
		MaxRetries:        3,
		MaxAgeSeconds:     86400,
		Status:            enums.SubscriptionActive,
	}
}
