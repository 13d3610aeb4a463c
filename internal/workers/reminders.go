// Package workers holds background loops started by the server.
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"movetrack/internal/engine"
)

// ReminderRunner is the part of the engine the reminder worker needs.
type ReminderRunner interface {
	RunReminders(ctx context.Context, opts engine.ReminderOptions) (engine.ReminderReport, error)
}

// Reminders runs the deadline reminder scan on a fixed interval. The once-per-day log
// kept by the engine makes short intervals safe.
type Reminders struct {
	runner   ReminderRunner
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReminders(runner ReminderRunner, logger *zap.Logger, interval time.Duration) *Reminders {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reminders{
		runner:   runner,
		log:      logger,
		interval: interval,
		timeout:  time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one scan immediately and then one per interval.
func (w *Reminders) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reminder worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Reminders) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("reminder worker stopped")
}

func (w *Reminders) run() {
	defer w.wg.Done()
	w.scan()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Reminders) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	report, err := w.runner.RunReminders(ctx, engine.ReminderOptions{})
	if err != nil {
		w.log.Error("reminder scan failed", zap.Error(err))
		return
	}
	if report.NotifyErr != nil {
		w.log.Warn("reminders not delivered, will retry", zap.Error(report.NotifyErr))
		return
	}
	if report.RemindersSent > 0 {
		w.log.Info("reminders sent",
			zap.Int("movements", report.RemindersSent),
			zap.Int("recipients", report.Recipients))
	}
}
