package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
)

// Authorizer answers the single scope question the matcher needs. The real
// implementation lives with the auth collaborator; the matcher treats it as an
// opaque predicate.
type Authorizer interface {
	ClientCanAccess(eventClientID, subscriptionClientID *uuid.UUID) bool
}

// AnchorAuthorizer grants anchor (unscoped) subscriptions access to every
// client and client-scoped subscriptions access to their own client only.
type AnchorAuthorizer struct{}

func (AnchorAuthorizer) ClientCanAccess(eventClientID, subscriptionClientID *uuid.UUID) bool {
	if subscriptionClientID == nil {
		return true
	}
	return eventClientID != nil && *eventClientID == *subscriptionClientID
}

// Matcher turns a committed event plus its candidate subscriptions into draft
// dispatch jobs. It is pure: no I/O, no clock besides the instant handed in.
type Matcher struct {
	authz           Authorizer
	defaultGroup    string
	defaultTimeout  time.Duration
	defaultProtocol enums.DispatchProtocol
}

// NewMatcher builds a matcher. The default message group is used when neither
// the subscription nor the event carries one.
func NewMatcher(authz Authorizer, defaultGroup string, defaultTimeout time.Duration) *Matcher {
	if authz == nil {
		authz = AnchorAuthorizer{}
	}
	if defaultGroup == "" {
		defaultGroup = "default"
	}
	return &Matcher{
		authz:           authz,
		defaultGroup:    defaultGroup,
		defaultTimeout:  defaultTimeout,
		defaultProtocol: enums.ProtocolHTTPWebhook,
	}
}

// Match produces zero or more draft jobs for one event. PAUSED subscriptions
// are excluded at the store query; stale events are silently dropped per
// subscription policy. No matching subscriptions is an empty result, not an
// error.
func (m *Matcher) Match(event *models.Event, subs []models.Subscription, now time.Time) ([]models.DispatchJob, error) {
	jobs := make([]models.DispatchJob, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		if sub.ClientScoped && !m.authz.ClientCanAccess(event.ClientID, sub.ClientID) {
			continue
		}
		if sub.MaxAgeSeconds > 0 && now.Sub(event.Time) > time.Duration(sub.MaxAgeSeconds)*time.Second {
			// Stale event: the subscription no longer wants it.
			continue
		}

		job, err := m.draftJob(event, sub, now)
		if err != nil {
			return nil, fmt.Errorf("draft job for subscription %s: %w", sub.Code, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (m *Matcher) draftJob(event *models.Event, sub *models.Subscription, now time.Time) (models.DispatchJob, error) {
	target, contentType, err := resolveTarget(sub)
	if err != nil {
		return models.DispatchJob{}, err
	}

	payload, err := buildPayload(event, sub.DataOnly)
	if err != nil {
		return models.DispatchJob{}, err
	}

	timeout := sub.TimeoutSeconds
	if timeout <= 0 {
		timeout = int(m.defaultTimeout.Seconds())
	}

	job := models.DispatchJob{
		ID:                 uuid.New(),
		Source:             event.Source,
		Code:               event.Type,
		Subject:            event.Subject,
		EventID:            event.ID,
		SubscriptionID:     sub.ID,
		CorrelationID:      event.CorrelationID,
		TargetURL:          target,
		Protocol:           m.defaultProtocol,
		Payload:            payload,
		PayloadContentType: contentType,
		DataOnly:           sub.DataOnly,
		ClientID:           sub.ClientID,
		DispatchPoolID:     sub.DispatchPoolID,
		MessageGroup:       m.messageGroup(sub, event),
		Sequence:           sub.Sequence,
		Mode:               sub.Mode,
		TimeoutSeconds:     timeout,
		Status:             enums.DispatchQueued,
		MaxRetries:         sub.MaxRetries,
		RetryStrategy:      enums.RetryExponential,
		AttemptCount:       0,
		ScheduledFor:       now.Add(time.Duration(sub.DelaySeconds) * time.Second),
		IdempotencyKey:     IdempotencyKey(event.ID, sub.ID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if sub.MaxAgeSeconds > 0 {
		expires := now.Add(time.Duration(sub.MaxAgeSeconds) * time.Second)
		job.ExpiresAt = &expires
	}

	return job, nil
}

// messageGroup derives the ordering key: the subscription's template (falling
// back to its code), suffixed with the event's group when present.
func (m *Matcher) messageGroup(sub *models.Subscription, event *models.Event) string {
	base := sub.MessageGroup
	if base == "" {
		base = sub.Code
	}
	if base == "" {
		base = m.defaultGroup
	}
	if event.MessageGroup == "" {
		return base
	}
	return base + ":" + event.MessageGroup
}

// IdempotencyKey derives the deterministic per-(event, subscription) key that
// makes re-ingestion idempotent.
func IdempotencyKey(eventID, subscriptionID uuid.UUID) string {
	sum := sha256.Sum256([]byte(eventID.String() + ":" + subscriptionID.String()))
	return hex.EncodeToString(sum[:])
}

// resolveTarget merges the subscription target with its ordered custom config
// overrides. A "target" entry replaces the URL, "contentType" replaces the
// payload content type, and remaining entries are appended as query
// parameters in order.
func resolveTarget(sub *models.Subscription) (string, string, error) {
	target := sub.Target
	contentType := "application/json"

	entries, err := sub.ConfigEntries()
	if err != nil {
		return "", "", fmt.Errorf("decode custom config: %w", err)
	}

	extras := make([]models.ConfigEntry, 0, len(entries))
	for _, entry := range entries {
		switch entry.Key {
		case "target":
			target = entry.Value
		case "contentType":
			contentType = entry.Value
		default:
			extras = append(extras, entry)
		}
	}

	if len(extras) > 0 {
		parsed, err := url.Parse(target)
		if err != nil {
			return "", "", fmt.Errorf("parse target url: %w", err)
		}
		q := parsed.Query()
		for _, entry := range extras {
			q.Set(entry.Key, entry.Value)
		}
		parsed.RawQuery = q.Encode()
		target = parsed.String()
	}

	return target, contentType, nil
}

// eventEnvelope is the full wrapper delivered when a subscription is not
// data-only.
type eventEnvelope struct {
	ID            string          `json:"id"`
	SpecVersion   string          `json:"specVersion"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Subject       string          `json:"subject,omitempty"`
	Time          string          `json:"time"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func buildPayload(event *models.Event, dataOnly bool) (json.RawMessage, error) {
	if dataOnly {
		return event.Data, nil
	}
	envelope := eventEnvelope{
		ID:            event.ID.String(),
		SpecVersion:   event.SpecVersion,
		Type:          event.Type,
		Source:        event.Source,
		Subject:       event.Subject,
		Time:          event.Time.UTC().Format(time.RFC3339Nano),
		CorrelationID: event.CorrelationID,
		Data:          event.Data,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}
	return raw, nil
}
