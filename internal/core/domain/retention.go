package domain

import (
	"fmt"
	"time"
)

// DeletionMethod selects what a retention policy does with expired records.
type DeletionMethod string

const (
	DeletionHard      DeletionMethod = "hard_delete"
	DeletionSoft      DeletionMethod = "soft_delete"
	DeletionAnonymize DeletionMethod = "anonymize"
)

// Valid reports whether the method is known.
func (m DeletionMethod) Valid() bool {
	return m == DeletionHard || m == DeletionSoft || m == DeletionAnonymize
}

// RetentionDataInactiveUsers is the data type whose records are user accounts themselves.
const RetentionDataInactiveUsers = "inactive_users"

// RetentionPolicy governs how long a data category is kept and what happens afterwards.
type RetentionPolicy struct {
	DataType               string
	RetentionDays          int
	AnonymizationDelayDays int
	DeletionMethod         DeletionMethod
	LegalBasis             string
	Exceptions             []string
	UpdatedAt              time.Time
}

// Validate checks the policy is executable.
func (p RetentionPolicy) Validate() error {
	if p.DataType == "" {
		return fmt.Errorf("retention policy data type is required")
	}
	if p.RetentionDays <= 0 {
		return fmt.Errorf("retention policy %s: retention days must be positive", p.DataType)
	}
	if p.AnonymizationDelayDays < 0 {
		return fmt.Errorf("retention policy %s: anonymization delay must not be negative", p.DataType)
	}
	if !p.DeletionMethod.Valid() {
		return fmt.Errorf("retention policy %s: unknown deletion method %q", p.DataType, p.DeletionMethod)
	}
	return nil
}

// Cutoff returns the instant before which records are past retention. It is the same for every
// deletion method; AnonymizationDelayDays is recorded with the policy but does not move it.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}

// HasException reports whether the policy carries the named exception tag.
func (p RetentionPolicy) HasException(tag string) bool {
	for _, e := range p.Exceptions {
		if e == tag {
			return true
		}
	}
	return false
}

// RetentionJobStatus follows pending -> running -> completed|failed.
type RetentionJobStatus string

const (
	RetentionJobPending   RetentionJobStatus = "pending"
	RetentionJobRunning   RetentionJobStatus = "running"
	RetentionJobCompleted RetentionJobStatus = "completed"
	RetentionJobFailed    RetentionJobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RetentionJobStatus) Terminal() bool {
	return s == RetentionJobCompleted || s == RetentionJobFailed
}

// RetentionTrigger records what started a job.
type RetentionTrigger string

const (
	RetentionTriggerScheduled RetentionTrigger = "scheduled"
	RetentionTriggerManual    RetentionTrigger = "manual"
)

// RetentionJob is created per policy execution and is immutable once terminal.
type RetentionJob struct {
	ID                string
	DataType          string
	Trigger           RetentionTrigger
	Status            RetentionJobStatus
	StartedAt         *time.Time
	CompletedAt       *time.Time
	RecordsProcessed  int
	RecordsDeleted    int
	RecordsAnonymized int
	Errors            []string
}

// Start moves a pending job to running.
func (j *RetentionJob) Start(at time.Time) error {
	if j.Status != RetentionJobPending {
		return fmt.Errorf("%w: job %s %s -> running", ErrInvalidTransition, j.ID, j.Status)
	}
	j.Status = RetentionJobRunning
	j.StartedAt = &at
	return nil
}

// Complete moves a running job to completed.
func (j *RetentionJob) Complete(at time.Time) error {
	if j.Status != RetentionJobRunning {
		return fmt.Errorf("%w: job %s %s -> completed", ErrInvalidTransition, j.ID, j.Status)
	}
	j.Status = RetentionJobCompleted
	j.CompletedAt = &at
	return nil
}

// Fail moves a non-terminal job to failed and records the cause.
func (j *RetentionJob) Fail(at time.Time, cause error) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s %s -> failed", ErrInvalidTransition, j.ID, j.Status)
	}
	j.Status = RetentionJobFailed
	j.CompletedAt = &at
	if cause != nil {
		j.Errors = append(j.Errors, cause.Error())
	}
	return nil
}

// RecordError appends a per-record failure without changing job state.
func (j *RetentionJob) RecordError(recordID string, err error) {
	j.Errors = append(j.Errors, fmt.Sprintf("%s: %v", recordID, err))
}

// RetentionOutcome is the per-record result of applying a deletion method.
type RetentionOutcome struct {
	Deleted    bool
	Anonymized bool
}
