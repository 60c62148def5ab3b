// Package scheduler fires cron-triggered job runs on a periodic sweep.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cwt-dev/cwtd/internal/types"
)

const sweepInterval = 30 * time.Second

// parser accepts the standard 5-field crontab form as well as a leading
// optional seconds field, so either "min hour dom month dow" or
// "sec min hour dom month dow" expressions work without pre-processing.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobsProvider returns the live set of configured jobs on every sweep.
type JobsProvider interface {
	Jobs() []types.Job
}

// Dispatcher executes a job; the scheduler only ever passes TriggerCron.
type Dispatcher interface {
	Execute(ctx context.Context, job types.Job, trigger types.Trigger, params map[string]string)
}

// Scheduler sweeps the job list every 30s and fires any job whose cron
// expression scheduled an activation since the last sweep. Dispatch is
// at-most-once per job per sweep regardless of how many activations fell
// inside the window.
type Scheduler struct {
	Jobs      JobsProvider
	Engine    Dispatcher
	lastCheck time.Time
}

// New wires a Scheduler.
func New(jobs JobsProvider, engine Dispatcher) *Scheduler {
	return &Scheduler{Jobs: jobs, Engine: engine}
}

// Run blocks, sweeping every 30s until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.lastCheck = time.Now()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.sweep(ctx)
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now()
	for _, job := range s.Jobs.Jobs() {
		if !job.Enabled || job.Cron == "" {
			continue
		}
		if s.dueSince(job.Cron, now) {
			log.Printf("[SCHEDULER] cron trigger for job %q", job.Name)
			go s.Engine.Execute(context.Background(), job, types.TriggerCron, nil)
		}
	}
	s.lastCheck = now
}

// dueSince reports whether expr has an activation time in
// (s.lastCheck, now].
func (s *Scheduler) dueSince(expr string, now time.Time) bool {
	sched, err := parser.Parse(expr)
	if err != nil {
		log.Printf("[SCHEDULER] invalid cron expression %q: %v", expr, err)
		return false
	}
	next := sched.Next(s.lastCheck)
	if next.IsZero() {
		return false
	}
	return !next.After(now)
}
