package worker

import (
	"casewatch/logger"
	"casewatch/models"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NotificationProcessor drains the notification queue
type NotificationProcessor interface {
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	ProcessNotification(ctx context.Context, n *models.Notification) error
}

// NotificationWorker is a background worker that delivers queued notifications.
// Provider calls are paced by a token bucket.
type NotificationWorker struct {
	processor NotificationProcessor
	interval  time.Duration
	batchSize int
	limiter   *rate.Limiter

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

// NewNotificationWorker creates a new notification worker. sendsPerSecond <= 0 disables pacing.
func NewNotificationWorker(processor NotificationProcessor, config *models.NotificationConfig) *NotificationWorker {
	if config == nil {
		config = models.DefaultNotificationConfig()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.SendsPerSecond > 0 {
		burst := config.SendBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.SendsPerSecond), burst)
	}
	batchSize := config.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotificationWorker{
		processor: processor,
		interval:  config.WorkerInterval,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// Start starts the notification worker
// The worker runs in a separate goroutine and processes notifications periodically
func (w *NotificationWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := logger.Component("notification_worker")
	if w.running {
		log.Warn("notification worker is already running")
		return
	}

	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	log.WithField("interval", w.interval).Info("notification worker started")

	go w.run()
}

// Stop stops the worker and waits for the current batch to finish
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	logger.Component("notification_worker").Info("notification worker stopped")
}

// run is the main worker loop
func (w *NotificationWorker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stopChan
		cancel()
	}()

	w.ProcessBatch(ctx)

	for {
		select {
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-w.stopChan:
			return
		}
	}
}

// BatchResult counts the outcome of one batch
type BatchResult struct {
	Sent   int
	Failed int
}

// ProcessBatch delivers up to one batch of due notifications.
// Safe to call repeatedly; each notification's state lives in the queue table.
func (w *NotificationWorker) ProcessBatch(ctx context.Context) BatchResult {
	var result BatchResult
	log := logger.Component("notification_worker")

	notifications, err := w.processor.GetPendingNotifications(ctx, w.batchSize)
	if err != nil {
		log.WithError(err).Error("failed to load pending notifications")
		return result
	}
	if len(notifications) == 0 {
		return result
	}

	startTime := time.Now()
	for i := range notifications {
		n := &notifications[i]
		if err := w.limiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("notification batch interrupted")
			break
		}
		if err := w.processor.ProcessNotification(ctx, n); err != nil {
			result.Failed++
			log.WithError(err).WithField("notification_id", n.NotificationID).Warn("notification not delivered")
			continue
		}
		result.Sent++
	}

	log.WithField("duration", time.Since(startTime)).
		WithField("sent", result.Sent).
		WithField("failed", result.Failed).
		Info("notification batch processed")
	return result
}
