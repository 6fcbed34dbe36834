package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/MoodTunes/app/models"
)

const (
	defaultArchiveSweepInterval = 5 * time.Minute
	archiveSweepGrace           = 10 * time.Minute
	archiveSweepBatch           = 100
	// archiveSweepMaxPages bounds how far one sweep reads past events it
	// skipped.
	archiveSweepMaxPages = 10
	// archiveSweepMaxAttempts caps sweep re-enqueues per event; events past
	// it stay unarchived until someone looks at them.
	archiveSweepMaxAttempts = 5
	archiveAttemptsTTL      = 7 * 24 * time.Hour
	archiveAttemptsPrefix   = "job_archive_attempts:"
)

// WebhookBacklog finds journaled deliveries that were never archived.
type WebhookBacklog interface {
	ListUnarchivedWebhookEvents(ctx context.Context, olderThan time.Time, afterID uint, limit int) ([]models.BillingWebhookEvent, error)
}

// Manager manages the job queue and background tasks
type Manager struct {
	queue         *Queue
	backlog       WebhookBacklog
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager wraps queue. A nil backlog disables the archive sweep.
func NewManager(queue *Queue, backlog WebhookBacklog) *Manager {
	return &Manager{
		queue:         queue,
		backlog:       backlog,
		sweepInterval: defaultArchiveSweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.backlog != nil {
		m.sweepTicker = time.NewTicker(m.sweepInterval)
		m.wg.Add(1)
		go m.archiveSweepWorker()
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// archiveSweepWorker re-enqueues archive jobs whose first enqueue was lost.
func (m *Manager) archiveSweepWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started archive sweep worker (interval: %s)", m.sweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Archive sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.SweepArchiveBacklog(context.Background(), time.Now()); err != nil {
				log.Errorf("[JobQueue Manager] Archive sweep error: %v", err)
			}
		}
	}
}

// SweepArchiveBacklog enqueues archive jobs for unarchived deliveries older
// than the grace period and returns how many it enqueued. Events enqueued
// within ArchiveMarkerTTL or already retried archiveSweepMaxAttempts times
// are skipped, and the sweep pages past them.
func (m *Manager) SweepArchiveBacklog(ctx context.Context, now time.Time) (int, error) {
	if m.backlog == nil {
		return 0, nil
	}
	olderThan := now.Add(-archiveSweepGrace)
	enqueued := 0
	var afterID uint
	for page := 0; page < archiveSweepMaxPages && enqueued < archiveSweepBatch; page++ {
		events, err := m.backlog.ListUnarchivedWebhookEvents(ctx, olderThan, afterID, archiveSweepBatch)
		if err != nil {
			return enqueued, err
		}
		for _, ev := range events {
			afterID = ev.ID
			if enqueued >= archiveSweepBatch {
				break
			}
			ok, err := m.enqueueArchiveRetry(ctx, ev.ID)
			if err != nil {
				return enqueued, err
			}
			if ok {
				enqueued++
			}
		}
		if len(events) < archiveSweepBatch {
			break
		}
	}
	if enqueued > 0 {
		log.Infof("[JobQueue Manager] Enqueued %d archive jobs from backlog", enqueued)
	}
	return enqueued, nil
}

func (m *Manager) enqueueArchiveRetry(ctx context.Context, webhookEventID uint) (bool, error) {
	if m.queue.client == nil {
		return false, fmt.Errorf("job queue has no redis client")
	}
	key := fmt.Sprintf("%s%d", archiveAttemptsPrefix, webhookEventID)
	attempts, err := m.queue.client.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	if attempts >= archiveSweepMaxAttempts {
		return false, nil
	}

	added, err := m.queue.EnqueueArchiveJob(ctx, webhookEventID)
	if err != nil || !added {
		return false, err
	}

	pipe := m.queue.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, archiveAttemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[JobQueue Manager] Could not count archive attempt for event %d: %v", webhookEventID, err)
		return true, nil
	}
	if incr.Val() == archiveSweepMaxAttempts {
		log.Errorf("[JobQueue Manager] Webhook event %d reached %d archive attempts, no further retries",
			webhookEventID, archiveSweepMaxAttempts)
	}
	return true, nil
}

// Health fails while the manager is stopped.
func (m *Manager) Health(_ context.Context) error {
	if !m.IsRunning() {
		return fmt.Errorf("job queue manager is not running")
	}
	return nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
