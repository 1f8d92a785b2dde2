package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robfig/cron/v3"
)

// Job runs on a five-field cron spec evaluated in the scheduler's location.
// A spec may carry its own CRON_TZ= prefix.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

type entry struct {
	job      Job
	schedule cron.Schedule
}

type Scheduler struct {
	loc        *time.Location
	logger     observability.Logger
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	entries    []entry
}

func New(loc *time.Location, logger observability.Logger, maxRetries int) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		loc:        loc,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    time.Second,
		now:        time.Now,
	}
}

// Add registers j. It fails when the cron expression does not parse.
func (s *Scheduler) Add(j Job) error {
	sched, err := cron.ParseStandard(j.Spec)
	if err != nil {
		return errors.Wrapf(err, "job %s: spec %q", j.Name, j.Spec)
	}
	s.entries = append(s.entries, entry{job: j, schedule: sched})
	return nil
}

// Next reports when the named job fires after t, in the scheduler's location.
func (s *Scheduler) Next(name string, t time.Time) (time.Time, bool) {
	for _, e := range s.entries {
		if e.job.Name == name {
			return e.schedule.Next(t.In(s.loc)), true
		}
	}
	return time.Time{}, false
}

// Run drives every job until ctx ends, then waits for running jobs to return.
// A job still running when its next firing comes due is skipped for that firing.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{log: s.logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	for _, e := range s.entries {
		j := e.job
		c.Schedule(e.schedule, cron.FuncJob(func() {
			if err := s.RunJob(ctx, j); err != nil && ctx.Err() == nil {
				s.logger.WithField("job", j.Name).WithError(err).Error("job failed")
			}
		}))
		if next, ok := s.Next(j.Name, s.now()); ok {
			s.logger.WithField("job", j.Name).WithField("next_run", next.Format(time.RFC3339)).Info("scheduled")
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunJob runs j now, retrying with exponential backoff.
func (s *Scheduler) RunJob(ctx context.Context, j Job) error {
	log := s.logger.WithField("job", j.Name)
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			observability.SchedulerRuns.WithLabelValues(j.Name, "retry").Inc()
			wait := s.backoff << (attempt - 1)
			log.WithField("attempt", attempt).WithError(err).Warn("retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = j.Run(ctx, s.now()); err == nil {
			observability.SchedulerRuns.WithLabelValues(j.Name, "ok").Inc()
			return nil
		}
	}
	observability.SchedulerRuns.WithLabelValues(j.Name, "failed").Inc()
	return errors.Wrapf(err, "%s failed after %d attempts", j.Name, s.maxRetries+1)
}

// cronLogger feeds cron's key/value logging into the service logger.
type cronLogger struct {
	log observability.Logger
}

func (l cronLogger) with(kv []any) observability.Logger {
	log := l.log
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			log = log.WithField(k, kv[i+1])
		}
	}
	return log
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.with(kv).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.with(kv).WithError(err).Error(msg)
}
