package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/plugin"
)

// Executor runs a named check.
type Executor func(ctx context.Context, name string, params plugin.Params) (plugin.Result, error)

// Runner executes stored schedules on their cron timetable and records each
// execution in the run history.
type Runner struct {
	cron     *cron.Cron
	store    *Store
	database *db.DB
	execute  Executor
	jobs     map[int64]cron.EntryID
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the global check registry.
func WithExecutor(e Executor) Option {
	return func(r *Runner) { r.execute = e }
}

// NewRunner creates a new schedule runner
func NewRunner(database *db.DB, logger *logrus.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cron:     cron.New(cron.WithParser(parser)),
		store:    NewStore(database),
		database: database,
		execute:  plugin.Execute,
		jobs:     make(map[int64]cron.EntryID),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the schedule store backing the runner.
func (r *Runner) Store() *Store {
	return r.store
}

// Start registers every enabled schedule and starts the cron loop.
func (r *Runner) Start() error {
	enabled := true
	schedules, err := r.store.List(Filter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := r.registerSchedule(schedule); err != nil {
			r.logger.WithError(err).WithField("schedule", schedule.Name).Warn("Failed to register schedule")
		}
	}

	r.cron.Start()

	r.mu.RLock()
	active := len(r.jobs)
	r.mu.RUnlock()
	r.logger.WithField("active", active).Info("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits up to timeout for running checks.
func (r *Runner) Stop(timeout time.Duration) {
	r.cancel()
	<-r.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Scheduler stopped")
	case <-time.After(timeout):
		r.logger.Warn("Timeout waiting for scheduled checks to complete")
	}
}

// RegisterSchedule adds a schedule to the runner
func (r *Runner) RegisterSchedule(scheduleID int64) error {
	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}
	return r.registerSchedule(schedule)
}

// UnregisterSchedule removes a schedule from the runner
func (r *Runner) UnregisterSchedule(scheduleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, exists := r.jobs[scheduleID]; exists {
		r.cron.Remove(entryID)
		delete(r.jobs, scheduleID)
		r.logger.WithField("schedule_id", scheduleID).Debug("Unregistered schedule")
	}
}

// RefreshSchedule reloads a schedule after it was edited.
func (r *Runner) RefreshSchedule(scheduleID int64) error {
	r.UnregisterSchedule(scheduleID)

	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}
	return r.registerSchedule(schedule)
}

func (r *Runner) registerSchedule(schedule *Schedule) error {
	if !schedule.Enabled {
		return nil
	}

	entryID, err := r.cron.AddFunc(schedule.CronExpr, r.createJob(schedule.ID))
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.mu.Lock()
	if old, exists := r.jobs[schedule.ID]; exists {
		r.cron.Remove(old)
	}
	r.jobs[schedule.ID] = entryID
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"schedule": schedule.Name,
		"cron":     schedule.CronExpr,
	}).Debug("Registered schedule")

	return nil
}

// createJob reloads the schedule on every tick so edits made through the
// store take effect without re-registering.
func (r *Runner) createJob(scheduleID int64) func() {
	return func() {
		if r.ctx.Err() != nil {
			return
		}

		schedule, err := r.store.Get(scheduleID)
		if err != nil {
			r.logger.WithError(err).WithField("schedule_id", scheduleID).Error("Failed to load schedule")
			return
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.Execute(r.ctx, schedule); err != nil {
				r.logger.WithError(err).WithField("schedule", schedule.Name).Error("Scheduled check failed")
			}
		}()
	}
}

// Execute runs schedule once, stores the run and its metrics, and advances
// the schedule. The returned run is nil only when nothing was recorded.
func (r *Runner) Execute(ctx context.Context, schedule *Schedule) (run *db.Run, err error) {
	log := r.logger.WithFields(logrus.Fields{
		"schedule": schedule.Name,
		"check":    schedule.Check,
		"device":   schedule.Device,
	})

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in schedule %s: %v", schedule.Name, p)
		}
	}()

	params := plugin.Params{
		Device: schedule.Device,
		Config: map[string]interface{}(schedule.Params),
	}

	run, err = r.database.CreateRun(schedule.Check, schedule.Device, schedule.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	log = log.WithField("run_id", run.ID)
	log.Info("Started scheduled check")

	result, execErr := r.execute(ctx, schedule.Check, params)

	end := result.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	run.EndTime = &end
	run.Success = result.Success && execErr == nil
	run.Error = result.Error
	run.Findings = result.Findings
	run.Details = db.JSONData(result.Details)
	if execErr != nil && run.Error == "" {
		run.Error = execErr.Error()
	}

	if err := r.database.Finish(run, Results(result)); err != nil {
		return run, fmt.Errorf("failed to record run: %w", err)
	}

	if schedule.ID != 0 {
		if err := r.store.UpdateLastRun(schedule.ID, run.ID); err != nil {
			log.WithError(err).Warn("Failed to update schedule last run")
		}
	}

	log.WithFields(logrus.Fields{
		"status":   run.GetStatus(),
		"duration": run.Duration(),
		"metrics":  len(result.Metrics),
	}).Info("Completed scheduled check")

	return run, nil
}

// CheckDue runs every overdue schedule now, one after another.
func (r *Runner) CheckDue(ctx context.Context) (int, error) {
	schedules, err := r.store.GetDue()
	if err != nil {
		return 0, fmt.Errorf("failed to get due schedules: %w", err)
	}

	for _, schedule := range schedules {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if _, err := r.Execute(ctx, schedule); err != nil {
			r.logger.WithError(err).WithField("schedule", schedule.Name).Error("Overdue check failed")
		}
	}

	return len(schedules), nil
}

// ListJobs returns information about all scheduled jobs
func (r *Runner) ListJobs() []cron.Entry {
	return r.cron.Entries()
}

// Results converts check metrics to history rows.
func Results(result plugin.Result) []db.Result {
	out := make([]db.Result, 0, len(result.Metrics))
	for _, m := range result.Metrics {
		out = append(out, db.Result{Metric: m.Name, Value: m.Value, Unit: m.Unit})
	}
	return out
}
