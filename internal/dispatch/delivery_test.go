package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
)

func newDeliveryJob(target string) *models.DispatchJob {
	return &models.DispatchJob{
		ID:                 uuid.New(),
		EventID:            uuid.New(),
		Code:               "order.created",
		CorrelationID:      "corr-1",
		TargetURL:          target,
		Payload:            []byte(`{"ok":true}`),
		PayloadContentType: "application/json",
		TimeoutSeconds:     5,
	}
}

func TestDeliverSuccess(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	job := newDeliveryJob(server.URL)
	result := NewHTTPDeliverer(server.Client(), 0, 0).Deliver(context.Background(), job)

	if result.Failed() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.ResponseCode == nil || *result.ResponseCode != http.StatusOK {
		t.Fatalf("unexpected response code %v", result.ResponseCode)
	}
	if result.ResponseBody != "ok" {
		t.Fatalf("unexpected body %q", result.ResponseBody)
	}
	if gotHeaders.Get("X-Dispatch-Job-Id") != job.ID.String() {
		t.Fatal("job id header missing")
	}
	if gotHeaders.Get("X-Correlation-Id") != "corr-1" {
		t.Fatal("correlation header missing")
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", gotHeaders.Get("Content-Type"))
	}
}

func TestDeliverClassifiesClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result := NewHTTPDeliverer(server.Client(), 0, 0).Deliver(context.Background(), newDeliveryJob(server.URL))

	if !result.Failed() || result.ErrorType == nil || *result.ErrorType != enums.AttemptErrorHTTP4xx {
		t.Fatalf("expected HTTP_4XX, got %+v", result)
	}
	if result.Retryable() {
		t.Fatal("4xx must not be retryable")
	}
}

func TestDeliverTreatsTooManyRequestsAsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := NewHTTPDeliverer(server.Client(), 0, 0).Deliver(context.Background(), newDeliveryJob(server.URL))

	if !result.Failed() || result.ErrorType == nil || *result.ErrorType != enums.AttemptErrorHTTP4xx {
		t.Fatalf("expected HTTP_4XX, got %+v", result)
	}
	if !result.Retryable() {
		t.Fatal("429 must be retryable")
	}
}

func TestDeliverClassifiesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := NewHTTPDeliverer(server.Client(), 0, 0).Deliver(context.Background(), newDeliveryJob(server.URL))

	if !result.Failed() || result.ErrorType == nil || *result.ErrorType != enums.AttemptErrorHTTP5xx {
		t.Fatalf("expected HTTP_5XX, got %+v", result)
	}
	if !result.Retryable() {
		t.Fatal("5xx must be retryable")
	}
}

func TestDeliverClassifiesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	job := newDeliveryJob(server.URL)
	job.TimeoutSeconds = 0
	result := NewHTTPDeliverer(server.Client(), 0, 50*time.Millisecond).Deliver(context.Background(), job)

	if !result.Failed() || result.ErrorType == nil || *result.ErrorType != enums.AttemptErrorTimeout {
		t.Fatalf("expected TIMEOUT, got %+v", result)
	}
	if !result.Retryable() {
		t.Fatal("timeout must be retryable")
	}
}

func TestDeliverClassifiesNetworkError(t *testing.T) {
	result := NewHTTPDeliverer(&http.Client{}, 0, time.Second).Deliver(context.Background(), newDeliveryJob("http://127.0.0.1:1"))

	if !result.Failed() || result.ErrorType == nil {
		t.Fatalf("expected failure, got %+v", result)
	}
	if *result.ErrorType != enums.AttemptErrorNetwork && *result.ErrorType != enums.AttemptErrorTimeout {
		t.Fatalf("expected NETWORK or TIMEOUT, got %s", *result.ErrorType)
	}
}

func TestDeliverTruncatesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer server.Close()

	result := NewHTTPDeliverer(server.Client(), 100, 0).Deliver(context.Background(), newDeliveryJob(server.URL))

	if len(result.ResponseBody) != 100 {
		t.Fatalf("expected truncated body of 100, got %d", len(result.ResponseBody))
	}
}
