package dispatch

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/torresline/eventgate/pkg/logger"
)

const defaultPublishTimeout = 15 * time.Second

// Publisher is the narrow publish surface the notifier needs. The GCP
// publisher satisfies it through gcpPublisher; tests substitute fakes.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

// NewGCPPublisher adapts a Pub/Sub publisher handle to the Publisher interface.
func NewGCPPublisher(inner *gcppubsub.Publisher) Publisher {
	if inner == nil {
		return nil
	}
	return gcpPublisher{inner: inner}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return p.inner.Publish(ctx, msg)
}

// Notifier publishes post-commit job pointers to the dispatch queue. Publishes
// are best effort: a failure is logged and swallowed because the sweeper
// re-announces any QUEUED job whose pointer was lost.
type Notifier struct {
	pub     Publisher
	logg    *logger.Logger
	timeout time.Duration
}

// NewNotifier builds a notifier. A zero timeout falls back to a sane default.
func NewNotifier(pub Publisher, logg *logger.Logger, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Notifier{pub: pub, logg: logg, timeout: timeout}
}

// Notify publishes one pointer and waits for the server ack.
func (n *Notifier) Notify(ctx context.Context, pointer JobPointer) error {
	if n.pub == nil {
		return fmt.Errorf("publisher not configured")
	}

	data, err := pointer.Encode()
	if err != nil {
		return fmt.Errorf("encoding pointer: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	result := n.pub.Publish(publishCtx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"jobId":          pointer.JobID.String(),
			"dispatchPoolId": pointer.DispatchPoolID.String(),
			"messageGroup":   pointer.MessageGroup,
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publishing pointer for job %s: %w", pointer.JobID, err)
	}
	return nil
}

// NotifyAll publishes pointers best effort and returns how many succeeded.
// Failures are logged; the jobs stay QUEUED and the sweeper picks them up.
func (n *Notifier) NotifyAll(ctx context.Context, pointers []JobPointer) int {
	published := 0
	for _, pointer := range pointers {
		if err := n.Notify(ctx, pointer); err != nil {
			if n.logg != nil {
				fields := n.logg.WithFields(ctx, map[string]any{
					"job_id":        pointer.JobID.String(),
					"message_group": pointer.MessageGroup,
				})
				n.logg.Warn(fields, fmt.Sprintf("pointer publish failed, sweeper will recover: %v", err))
			}
			continue
		}
		published++
	}
	return published
}
