package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultEnqueueTimeout bounds how long a billing call waits for Redis.
const DefaultEnqueueTimeout = 500 * time.Millisecond

// enqueueDeadline bounds a detached enqueue that outlived the caller's wait.
const enqueueDeadline = 10 * time.Second

// ErrEnqueueTimeout is returned when Redis did not answer within the
// notifier's timeout. The enqueue keeps running in the background and may
// still land.
var ErrEnqueueTimeout = errors.New("job enqueue timed out")

// BillingNotifier turns billing outcomes into jobs. Job types without a
// configured backend are not enqueued.
type BillingNotifier struct {
	queue   *Queue
	mail    bool
	archive bool
	timeout time.Duration
}

func NewBillingNotifier(queue *Queue, mailEnabled, archiveEnabled bool) *BillingNotifier {
	return &BillingNotifier{queue: queue, mail: mailEnabled, archive: archiveEnabled, timeout: DefaultEnqueueTimeout}
}

// WithTimeout changes how long each notification waits for Redis.
func (n *BillingNotifier) WithTimeout(d time.Duration) *BillingNotifier {
	if d > 0 {
		n.timeout = d
	}
	return n
}

func (n *BillingNotifier) OrderCompleted(ctx context.Context, orderID string, userID uint) error {
	if !n.mail {
		return nil
	}
	return n.enqueue(ctx, JobTypeSubscriptionActivatedEmail, func(jobCtx context.Context) error {
		_, err := n.queue.EnqueueJob(jobCtx, JobTypeSubscriptionActivatedEmail, OrderEmailJobPayload{OrderID: orderID, UserID: userID}.ToMap())
		return err
	})
}

func (n *BillingNotifier) PaymentFailed(ctx context.Context, orderID string, userID uint) error {
	if !n.mail {
		return nil
	}
	return n.enqueue(ctx, JobTypePaymentFailedEmail, func(jobCtx context.Context) error {
		_, err := n.queue.EnqueueJob(jobCtx, JobTypePaymentFailedEmail, OrderEmailJobPayload{OrderID: orderID, UserID: userID}.ToMap())
		return err
	})
}

func (n *BillingNotifier) WebhookRecorded(ctx context.Context, webhookEventID uint) error {
	if !n.archive {
		return nil
	}
	return n.enqueue(ctx, JobTypeArchiveWebhookPayload, func(jobCtx context.Context) error {
		_, err := n.queue.EnqueueArchiveJob(jobCtx, webhookEventID)
		return err
	})
}

// enqueue runs push detached from the caller and waits at most n.timeout for
// it. Webhook acknowledgements must not hang on a stalled Redis; archive jobs
// lost this way are picked up again by the backlog sweep.
func (n *BillingNotifier) enqueue(ctx context.Context, jobType JobType, push func(context.Context) error) error {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueDeadline)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- push(jobCtx)
	}()

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			log.Errorf("[JobQueue] Could not enqueue %s: %v", jobType, err)
			return err
		}
		return nil
	case <-timer.C:
		log.Warnf("[JobQueue] Enqueue of %s still pending after %s, not waiting", jobType, n.timeout)
		return ErrEnqueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
