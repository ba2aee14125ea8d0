package cron

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/linanwx/ferry/logger"
)

// Fire receives each job run.
type Fire func(job Job)

// Scheduler runs jobs on gocron.
type Scheduler struct {
	cron    gocron.Scheduler
	fire    Fire
	jobs    map[string]Job
	cancels map[string]func()
	mu      sync.Mutex
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(fire Fire) (*Scheduler, error) {
	sch, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		cron:    sch,
		fire:    fire,
		jobs:    make(map[string]Job),
		cancels: make(map[string]func()),
	}, nil
}

// Load replaces the scheduled jobs with list. Invalid or disabled jobs are
// skipped with a warning; the number scheduled is returned.
func (s *Scheduler) Load(list []Job) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()

	now := time.Now().UTC()
	for _, raw := range list {
		job := Normalize(raw)
		if !job.IsEnabled() {
			continue
		}
		if ok, expired := Validate(job, now); !ok {
			logger.Warn("schedule skipped", "id", job.ID, "kind", job.Kind, "expired", expired)
			continue
		}
		if _, dup := s.jobs[job.ID]; dup {
			logger.Warn("duplicate schedule id, skipped", "id", job.ID)
			continue
		}

		cancel, err := s.scheduleLocked(job)
		if err != nil {
			logger.Warn("failed to schedule job", "id", job.ID, "kind", job.Kind, "err", err)
			continue
		}
		s.jobs[job.ID] = job
		s.cancels[job.ID] = cancel
	}
	return len(s.jobs)
}

// Jobs returns the scheduled jobs ordered by id.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	if err := s.cron.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown failed", "err", err)
	}
}

func (s *Scheduler) scheduleLocked(job Job) (func(), error) {
	var def gocron.JobDefinition
	switch job.Kind {
	case JobKindCron:
		def = gocron.CronJob(job.Expr, false)
	case JobKindAt:
		def = gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(job.AtTime))
	default:
		return nil, fmt.Errorf("unsupported job kind: %s", job.Kind)
	}

	registered, err := s.cron.NewJob(def, gocron.NewTask(s.run, job), gocron.WithName(job.ID))
	if err != nil {
		return nil, err
	}
	return func() { _ = s.cron.RemoveJob(registered.ID()) }, nil
}

func (s *Scheduler) run(job Job) {
	logger.Info("schedule fired", "id", job.ID, "command", job.Command)
	if s.fire != nil {
		s.fire(job)
	}
	if job.Kind == JobKindAt {
		s.mu.Lock()
		if cancel, ok := s.cancels[job.ID]; ok {
			cancel()
			delete(s.cancels, job.ID)
		}
		delete(s.jobs, job.ID)
		s.mu.Unlock()
	}
}

func (s *Scheduler) resetLocked() {
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.jobs = make(map[string]Job)
}
