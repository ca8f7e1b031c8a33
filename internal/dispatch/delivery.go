package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
)

const defaultResponseBodyLimit = 64 * 1024

// AttemptResult captures one delivery attempt for recording and the retry
// decision.
type AttemptResult struct {
	Status       enums.AttemptStatus
	ResponseCode *int
	ResponseBody string
	ErrorType    *enums.AttemptErrorType
	ErrorMessage *string
	Duration     time.Duration
}

// Failed reports whether the attempt did not produce a 2xx response.
func (r AttemptResult) Failed() bool {
	return r.Status != enums.AttemptSucceeded
}

// Retryable reports whether the failure class warrants another attempt.
// Client errors are treated as permanent, with one exception: 429 means the
// receiver is shedding load right now, so a later replay can land. Every other
// 4xx would be rejected the same way on replay.
func (r AttemptResult) Retryable() bool {
	if !r.Failed() {
		return false
	}
	if r.ResponseCode != nil && *r.ResponseCode == http.StatusTooManyRequests {
		return true
	}
	return r.ErrorType == nil || *r.ErrorType != enums.AttemptErrorHTTP4xx
}

// Deliverer executes one delivery attempt against the job's target.
type Deliverer interface {
	Deliver(ctx context.Context, job *models.DispatchJob) AttemptResult
}

// HTTPDeliverer posts the job payload to its webhook target.
type HTTPDeliverer struct {
	client         *http.Client
	bodyLimit      int
	defaultTimeout time.Duration
}

// NewHTTPDeliverer builds a webhook deliverer. The client's own timeout is
// left unset; per-job timeouts are applied through the request context.
func NewHTTPDeliverer(client *http.Client, bodyLimit int, defaultTimeout time.Duration) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	if bodyLimit <= 0 {
		bodyLimit = defaultResponseBodyLimit
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &HTTPDeliverer{
		client:         client,
		bodyLimit:      bodyLimit,
		defaultTimeout: defaultTimeout,
	}
}

// Deliver posts the payload and classifies the outcome. It never returns an
// error; failures are data on the result.
func (d *HTTPDeliverer) Deliver(ctx context.Context, job *models.DispatchJob) AttemptResult {
	timeout := d.defaultTimeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.TargetURL, bytes.NewReader(job.Payload))
	if err != nil {
		return failedAttempt(enums.AttemptErrorNetwork, err.Error(), time.Since(started))
	}
	contentType := job.PayloadContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Dispatch-Job-Id", job.ID.String())
	req.Header.Set("X-Event-Id", job.EventID.String())
	req.Header.Set("X-Event-Type", job.Code)
	if job.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", job.CorrelationID)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		elapsed := time.Since(started)
		if isTimeout(err) {
			return failedAttempt(enums.AttemptErrorTimeout, err.Error(), elapsed)
		}
		return failedAttempt(enums.AttemptErrorNetwork, err.Error(), elapsed)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.bodyLimit)))
	elapsed := time.Since(started)
	code := resp.StatusCode

	result := AttemptResult{
		ResponseCode: &code,
		ResponseBody: string(body),
		Duration:     elapsed,
	}

	switch {
	case code >= 200 && code < 300:
		result.Status = enums.AttemptSucceeded
	case code >= 400 && code < 500:
		result.Status = enums.AttemptFailed
		errType := enums.AttemptErrorHTTP4xx
		msg := http.StatusText(code)
		result.ErrorType = &errType
		result.ErrorMessage = &msg
	default:
		result.Status = enums.AttemptFailed
		errType := enums.AttemptErrorHTTP5xx
		msg := http.StatusText(code)
		result.ErrorType = &errType
		result.ErrorMessage = &msg
	}
	return result
}

func failedAttempt(errType enums.AttemptErrorType, msg string, elapsed time.Duration) AttemptResult {
	return AttemptResult{
		Status:       enums.AttemptFailed,
		ErrorType:    &errType,
		ErrorMessage: &msg,
		Duration:     elapsed,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
