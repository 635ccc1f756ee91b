package crawler

import (
	"fmt"
	"time"
)

var domainTransitions = map[DomainStatus][]DomainStatus{
	DomainStatusPending: {DomainStatusInProgress},
	DomainStatusInProgress: {
		DomainStatusCompleted,
		DomainStatusFailed,
		DomainStatusPaused,
		DomainStatusPending,
	},
	DomainStatusCompleted: {DomainStatusPending, DomainStatusInProgress},
	DomainStatusFailed:    {DomainStatusPending, DomainStatusInProgress},
	DomainStatusPaused:    {DomainStatusPending},
}

// CanTransitionDomain reports whether a domain may move from one status to another.
// Completed and failed domains may be taken straight to in_progress by an
// on-demand crawl.
func CanTransitionDomain(from, to DomainStatus) bool {
	for _, allowed := range domainTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NewJob returns a queued job for the domain.
func NewJob(id string, domainID int64, now time.Time) CrawlJob {
	return CrawlJob{
		ID:        id,
		DomainID:  domainID,
		Status:    JobStatusQueued,
		CreatedAt: now,
	}
}

// Start moves a queued job to running.
func (j *CrawlJob) Start(now time.Time) error {
	if j.Status != JobStatusQueued {
		return fmt.Errorf("start job %s from %s: %w", j.ID, j.Status, ErrInvalidTransition)
	}
	j.Status = JobStatusRunning
	j.StartedAt = &now
	return nil
}

// Complete marks a running job completed.
func (j *CrawlJob) Complete(now time.Time) error {
	return j.finish(JobStatusCompleted, "", now)
}

// Fail marks a running job failed with the given message.
func (j *CrawlJob) Fail(msg string, now time.Time) error {
	return j.finish(JobStatusFailed, msg, now)
}

// Cancel marks a queued or running job cancelled.
func (j *CrawlJob) Cancel(msg string, now time.Time) error {
	if j.Status == JobStatusQueued {
		j.Status = JobStatusRunning
	}
	return j.finish(JobStatusCancelled, msg, now)
}

func (j *CrawlJob) finish(status JobStatus, msg string, now time.Time) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("finish job %s as %s from %s: %w", j.ID, status, j.Status, ErrInvalidTransition)
	}
	j.Status = status
	j.ErrorMessage = msg
	j.CompletedAt = &now
	return nil
}
