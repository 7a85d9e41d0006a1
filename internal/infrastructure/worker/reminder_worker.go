package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderRunner sends reminders for overdue steps and reports how many
type ReminderRunner interface {
	SendDueReminders(ctx context.Context) (int, error)
}

// ReminderWorkerConfig holds configuration for the reminder worker
type ReminderWorkerConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule   string
	RunTimeout time.Duration
}

// DefaultReminderWorkerConfig returns default configuration
func DefaultReminderWorkerConfig() ReminderWorkerConfig {
	return ReminderWorkerConfig{
		Schedule:   "*/15 * * * *",
		RunTimeout: time.Minute,
	}
}

// ReminderStatus is a snapshot of the worker's counters
type ReminderStatus struct {
	Running   bool
	Runs      int
	Reminded  int
	LastRun   time.Time
	NextRun   time.Time
	LastError string
}

// ReminderWorker runs the overdue-step reminder sweep on a cron schedule
type ReminderWorker struct {
	config ReminderWorkerConfig
	runner ReminderRunner
	logger *zap.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	entryID   cron.EntryID
	ctx       context.Context
	running   bool
	runs      int
	reminded  int
	lastRun   time.Time
	lastError error
}

// NewReminderWorker validates the schedule and creates the worker
func NewReminderWorker(config ReminderWorkerConfig, runner ReminderRunner, logger *zap.Logger) (*ReminderWorker, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultReminderWorkerConfig().Schedule
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultReminderWorkerConfig().RunTimeout
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", config.Schedule, err)
	}

	return &ReminderWorker{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start schedules the sweep. Overlapping runs are skipped.
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("reminder worker already running")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(w.config.Schedule, w.RunOnce)
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	w.cron = c
	w.entryID = id
	w.ctx = ctx
	w.running = true
	c.Start()

	w.logger.Info("ReminderWorker started",
		zap.String("schedule", w.config.Schedule),
		zap.Time("next_run", c.Entry(id).Next))

	return nil
}

// Stop unschedules the sweep and waits for a running one to finish
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	c := w.cron
	w.mu.Unlock()

	<-c.Stop().Done()

	w.mu.Lock()
	runs, reminded := w.runs, w.reminded
	w.mu.Unlock()

	w.logger.Info("ReminderWorker stopped", zap.Int("runs", runs), zap.Int("reminded", reminded))
	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

// RunOnce performs one sweep under the configured timeout
func (w *ReminderWorker) RunOnce() {
	w.mu.Lock()
	parent := w.ctx
	w.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, w.config.RunTimeout)
	defer cancel()

	count, err := w.runner.SendDueReminders(ctx)

	w.mu.Lock()
	w.runs++
	w.reminded += count
	w.lastRun = time.Now()
	w.lastError = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Reminder sweep failed", zap.Int("reminded", count), zap.Error(err))
		return
	}
	if count > 0 {
		w.logger.Info("Reminder sweep completed", zap.Int("reminded", count))
	}
}

// Status returns the worker's counters
func (w *ReminderWorker) Status() ReminderStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := ReminderStatus{
		Running:  w.running,
		Runs:     w.runs,
		Reminded: w.reminded,
		LastRun:  w.lastRun,
	}
	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}
	if w.running && w.cron != nil {
		status.NextRun = w.cron.Entry(w.entryID).Next
	}
	return status
}
