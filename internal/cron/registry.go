package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks registered cron jobs.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		registry.jobs = append(registry.jobs, job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Every wraps job so it runs at most once per period within this process.
// A failed run does not count, so the next cycle retries it.
func Every(job Job, period time.Duration) Job {
	if job == nil || period <= 0 {
		return job
	}
	return &periodicJob{job: job, period: period, now: time.Now}
}

type periodicJob struct {
	job     Job
	period  time.Duration
	lastRun time.Time
	now     func() time.Time
}

func (p *periodicJob) Name() string { return p.job.Name() }

func (p *periodicJob) Run(ctx context.Context) error {
	now := p.now()
	if !p.lastRun.IsZero() && now.Sub(p.lastRun) < p.period {
		return nil
	}
	if err := p.job.Run(ctx); err != nil {
		return err
	}
	p.lastRun = now
	return nil
}
