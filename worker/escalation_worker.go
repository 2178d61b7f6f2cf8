package worker

import (
	"casewatch/logger"
	"casewatch/models"
	"casewatch/service"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs one escalation sweep
type Sweeper interface {
	RunSweep(ctx context.Context, opts service.SweepOptions) (*models.SweepReport, error)
}

// EscalationWorker runs the sweep on a cron schedule inside the server process.
// A sweep still running when the next tick fires is skipped, not queued.
type EscalationWorker struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewEscalationWorker creates a new escalation worker. schedule uses cron syntax or
// descriptors such as "@every 5m". timeout bounds one sweep; 0 means no bound.
func NewEscalationWorker(sweeper Sweeper, schedule string, timeout time.Duration) *EscalationWorker {
	return &EscalationWorker{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  timeout,
	}
}

// Start schedules the sweep. runNow triggers one sweep immediately in the background.
func (w *EscalationWorker) Start(runNow bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := logger.Component("escalation_worker")
	if w.running {
		log.Warn("escalation worker is already running")
		return nil
	}

	cronLog := cron.PrintfLogger(log)
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLog))
	ctx, cancel := context.WithCancel(context.Background())
	job := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).
		Then(cron.FuncJob(func() { _, _ = w.RunOnce(ctx) }))
	if _, err := c.AddJob(w.schedule, job); err != nil {
		cancel()
		return fmt.Errorf("invalid escalation schedule %q: %w", w.schedule, err)
	}

	w.cron = c
	w.cancel = cancel
	w.running = true
	c.Start()
	log.WithField("schedule", w.schedule).Info("escalation worker started")

	if runNow {
		// same wrapped job, so it cannot overlap the first tick
		go job.Run()
	}
	return nil
}

// Stop cancels any in-flight sweep and waits for it to return
func (w *EscalationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	c, cancel := w.cron, w.cancel
	w.mu.Unlock()

	log := logger.Component("escalation_worker")
	log.Info("stopping escalation worker")
	cancel()
	<-c.Stop().Done()
	log.Info("escalation worker stopped")
}

// RunOnce performs one sweep and logs its outcome
func (w *EscalationWorker) RunOnce(ctx context.Context) (*models.SweepReport, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	report, err := w.sweeper.RunSweep(ctx, service.SweepOptions{})
	log := logger.Component("escalation_worker")
	if err != nil {
		log.WithError(err).Error("escalation sweep failed")
		return report, err
	}

	log.WithField("run_id", report.RunID).
		WithField("duration", report.FinishedAt.Sub(report.StartedAt)).
		WithField("scanned", report.CasesScanned).
		WithField("escalated", len(report.Escalations)).
		WithField("failed", report.CasesFailed).
		Info("escalation sweep completed")
	return report, nil
}
