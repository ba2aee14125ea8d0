// Package cron fires configured slash commands on a schedule.
package cron

import (
	"strings"
	"time"
)

const (
	JobKindCron = "cron"
	JobKindAt   = "at"
)

// Job runs Command on Expr (cron kind) or once at AtTime (at kind).
type Job struct {
	ID      string    `yaml:"id"`
	Kind    string    `yaml:"kind,omitempty"`
	Expr    string    `yaml:"expr,omitempty"`
	AtTime  time.Time `yaml:"at_time,omitempty"`
	Command string    `yaml:"command"`
	Enabled *bool     `yaml:"enabled,omitempty"`
}

// IsEnabled treats an unset Enabled as true.
func (j Job) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// Validate reports whether job can be scheduled. expired is set for at jobs
// whose time has passed.
func Validate(job Job, now time.Time) (ok bool, expired bool) {
	if job.ID == "" || job.Command == "" {
		return false, false
	}
	switch job.Kind {
	case JobKindCron:
		return job.Expr != "", false
	case JobKindAt:
		if job.AtTime.IsZero() {
			return false, false
		}
		if !job.AtTime.After(now) {
			return false, true
		}
		return true, false
	}
	return false, false
}

// Normalize trims fields and infers Kind from which schedule field is set.
func Normalize(job Job) Job {
	job.ID = strings.TrimSpace(job.ID)
	job.Kind = strings.ToLower(strings.TrimSpace(job.Kind))
	job.Expr = strings.TrimSpace(job.Expr)
	job.Command = strings.TrimSpace(job.Command)
	if !job.AtTime.IsZero() {
		job.AtTime = job.AtTime.UTC()
	}

	if job.Kind == "" {
		if job.AtTime.IsZero() {
			job.Kind = JobKindCron
		} else {
			job.Kind = JobKindAt
		}
	}
	return job
}
