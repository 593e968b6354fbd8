package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const defaultRetentionBatchSize = 500

var (
	// ErrRetentionPolicyNotFound indicates no policy governs the requested data type.
	ErrRetentionPolicyNotFound = domain.NewError(domain.KindNotFound, "retention_policy_not_found", "retention policy not found")
	// ErrRetentionPolicyInvalid indicates a configured policy cannot be executed.
	ErrRetentionPolicyInvalid = domain.NewError(domain.KindConfiguration, "retention_policy_invalid", "retention policy is invalid")
)

// alertRaiser is the part of AuditService the background services need.
type alertRaiser interface {
	RaiseAlert(ctx context.Context, alertType string, severity domain.AlertSeverity, message string, details map[string]any) (domain.SecurityAlert, error)
}

// RetentionDeps groups the collaborators of RetentionService.
type RetentionDeps struct {
	Policies port.RetentionPolicyRepository
	Jobs     port.RetentionJobRepository
	Records  port.RetentionRecordRepository
	Tx       port.Transactor
	Mirror   port.SessionRepository
	Cache    port.SessionCache
	Events   port.EventPublisher
	Audit    port.AuditLogger
	Alerts   alertRaiser
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

// PolicyStatus pairs a policy with its most recent job.
type PolicyStatus struct {
	Policy  domain.RetentionPolicy `json:"policy"`
	LastJob *domain.RetentionJob   `json:"last_job,omitempty"`
	Overdue int                    `json:"overdue_records"`
}

// RetentionService applies retention policies in batches.
type RetentionService struct {
	policies  port.RetentionPolicyRepository
	jobs      port.RetentionJobRepository
	records   port.RetentionRecordRepository
	tx        port.Transactor
	mirror    port.SessionRepository
	cache     port.SessionCache
	events    port.EventPublisher
	audit     port.AuditLogger
	alerts    alertRaiser
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	batchSize int
	now       func() time.Time
}

// NewRetentionService constructs a RetentionService.
func NewRetentionService(deps RetentionDeps, cfg config.RetentionSettings) *RetentionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultRetentionBatchSize
	}
	return &RetentionService{
		policies:  deps.Policies,
		jobs:      deps.Jobs,
		records:   deps.Records,
		tx:        deps.Tx,
		mirror:    deps.Mirror,
		cache:     deps.Cache,
		events:    deps.Events,
		audit:     deps.Audit,
		alerts:    deps.Alerts,
		metrics:   deps.Metrics,
		logger:    logger,
		batchSize: batch,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RetentionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// SyncPolicies validates configured policies and stores them. A data type without a schema mapping,
// or an exception tag the data type cannot honour, is a configuration error.
func (s *RetentionService) SyncPolicies(ctx context.Context, configured []config.PolicyConfig) error {
	for _, pc := range configured {
		policy := domain.RetentionPolicy{
			DataType:               strings.TrimSpace(pc.DataType),
			RetentionDays:          pc.RetentionDays,
			AnonymizationDelayDays: pc.AnonymizationDelayDays,
			DeletionMethod:         domain.DeletionMethod(strings.TrimSpace(pc.DeletionMethod)),
			LegalBasis:             pc.LegalBasis,
			Exceptions:             pc.Exceptions,
			UpdatedAt:              s.now(),
		}
		if err := policy.Validate(); err != nil {
			return ErrRetentionPolicyInvalid.Wrap(err)
		}
		if !s.records.Supports(policy.DataType) {
			return ErrRetentionPolicyInvalid.Wrap(fmt.Errorf("no storage mapping for data type %s", policy.DataType))
		}
		for _, tag := range policy.Exceptions {
			if !s.records.SupportsException(policy.DataType, tag) {
				return ErrRetentionPolicyInvalid.Wrap(fmt.Errorf("data type %s cannot honour exception %q", policy.DataType, tag))
			}
		}
		if err := s.policies.Upsert(ctx, policy); err != nil {
			return fmt.Errorf("upsert retention policy %s: %w", policy.DataType, err)
		}
	}
	return nil
}

// ExecuteRetentionPolicies runs every policy once. A failing policy records a failed job and does not
// stop the others. Cancellation is honoured between policies.
func (s *RetentionService) ExecuteRetentionPolicies(ctx context.Context) ([]domain.RetentionJob, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}

	jobs := make([]domain.RetentionJob, 0, len(policies))
	var failed int
	for _, policy := range policies {
		if err := ctx.Err(); err != nil {
			return jobs, err
		}
		job, err := s.ExecuteRetentionPolicy(ctx, policy, domain.RetentionTriggerScheduled)
		if err != nil {
			s.logger.Error("retention policy failed",
				zap.String("data_type", policy.DataType),
				zap.Error(err),
			)
		}
		if job.Status == domain.RetentionJobFailed {
			failed++
		}
		jobs = append(jobs, job)
	}

	s.logger.Info("retention pass finished",
		zap.Int("policies", len(policies)),
		zap.Int("failed", failed),
	)
	return jobs, nil
}

// ExecuteRetentionPolicy applies one policy to every record past its cutoff. Records are transformed
// one per transaction; per-record failures are collected on the job. The job fails when the policy
// cannot run at all or the context is cancelled between batches.
func (s *RetentionService) ExecuteRetentionPolicy(ctx context.Context, policy domain.RetentionPolicy, trigger domain.RetentionTrigger) (domain.RetentionJob, error) {
	startedAt := s.now()
	job := domain.RetentionJob{
		ID:       security.NewULID(startedAt),
		DataType: policy.DataType,
		Trigger:  trigger,
		Status:   domain.RetentionJobPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return job, fmt.Errorf("create retention job: %w", err)
	}
	if err := job.Start(startedAt); err != nil {
		return job, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("start retention job: %w", err)
	}

	runErr := s.run(ctx, policy, &job)

	finishedAt := s.now()
	if runErr != nil {
		_ = job.Fail(finishedAt, runErr)
	} else {
		_ = job.Complete(finishedAt)
	}

	// The terminal state is persisted even when the run was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.jobs.Update(persistCtx, job); err != nil {
		s.logger.Error("persist retention job", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.finished(persistCtx, policy, job, finishedAt.Sub(startedAt))

	if runErr != nil {
		return job, fmt.Errorf("retention %s: %w", policy.DataType, runErr)
	}
	return job, nil
}

func (s *RetentionService) run(ctx context.Context, policy domain.RetentionPolicy, job *domain.RetentionJob) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	cutoff := policy.Cutoff(s.now())

	var afterID string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := s.records.SelectExpired(ctx, policy, cutoff, afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("select expired records: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		// A started batch runs to completion; cancellation is observed at the next boundary.
		batchCtx := context.WithoutCancel(ctx)
		for _, id := range ids {
			outcome, err := s.apply(batchCtx, policy, id)
			if err != nil {
				job.RecordError(id, err)
				continue
			}
			job.RecordsProcessed++
			if outcome.Deleted {
				job.RecordsDeleted++
			}
			if outcome.Anonymized {
				job.RecordsAnonymized++
			}
		}

		if len(ids) < s.batchSize {
			return nil
		}
		afterID = ids[len(ids)-1]
	}
}

func (s *RetentionService) apply(ctx context.Context, policy domain.RetentionPolicy, id string) (domain.RetentionOutcome, error) {
	var outcome domain.RetentionOutcome
	at := s.now()

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		records := tx.RetentionRecords()
		switch policy.DeletionMethod {
		case domain.DeletionHard:
			if err := records.HardDelete(ctx, policy.DataType, id); err != nil {
				return err
			}
			outcome.Deleted = true
		case domain.DeletionSoft:
			if err := records.SoftDelete(ctx, policy.DataType, id, at); err != nil {
				return err
			}
			outcome.Deleted = true
		case domain.DeletionAnonymize:
			err := records.Anonymize(ctx, policy.DataType, id, at)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				// Already anonymized by a concurrent or earlier run.
			case err != nil:
				return err
			default:
				outcome.Anonymized = true
			}
		default:
			return fmt.Errorf("unknown deletion method %q", policy.DeletionMethod)
		}
		if policy.DataType == domain.RetentionDataInactiveUsers && (outcome.Deleted || outcome.Anonymized) {
			// The account's credentials are gone; its cached sessions go with it or the record is retried.
			if _, err := s.cache.DeleteAllForUser(ctx, id); err != nil {
				return fmt.Errorf("revoke cached sessions: %w", err)
			}
		}
		return nil
	})
	return outcome, err
}

func (s *RetentionService) finished(ctx context.Context, policy domain.RetentionPolicy, job domain.RetentionJob, elapsed time.Duration) {
	touched := job.RecordsDeleted + job.RecordsAnonymized
	s.metrics.ObserveRetention(job.DataType, string(policy.DeletionMethod), string(job.Status), touched, elapsed)

	if s.events != nil {
		if err := s.events.PublishRetentionJob(ctx, job); err != nil {
			s.logger.Warn("publish retention job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	risk := domain.RiskLow
	if job.Status == domain.RetentionJobFailed {
		risk = domain.RiskMedium
	}
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type: domain.EventRetentionJobFinished,
		Risk: risk,
		Payload: map[string]any{
			"job_id":             job.ID,
			"data_type":          job.DataType,
			"trigger":            string(job.Trigger),
			"status":             string(job.Status),
			"deletion_method":    string(policy.DeletionMethod),
			"records_processed":  job.RecordsProcessed,
			"records_deleted":    job.RecordsDeleted,
			"records_anonymized": job.RecordsAnonymized,
			"errors":             len(job.Errors),
		},
	})

	s.logger.Info("retention job finished",
		zap.String("job_id", job.ID),
		zap.String("data_type", job.DataType),
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.RecordsProcessed),
		zap.Int("errors", len(job.Errors)),
		zap.Duration("elapsed", elapsed),
	)

	if job.Status == domain.RetentionJobFailed && s.alerts != nil {
		details := map[string]any{"job_id": job.ID, "data_type": job.DataType}
		if len(job.Errors) > 0 {
			details["last_error"] = job.Errors[len(job.Errors)-1]
		}
		if _, err := s.alerts.RaiseAlert(ctx, domain.AlertRetentionFailure, domain.SeverityError,
			fmt.Sprintf("retention job for %s failed", job.DataType), details); err != nil {
			s.logger.Warn("raise retention alert", zap.Error(err))
		}
	}
}

// TriggerPolicy runs the policy for dataType immediately.
func (s *RetentionService) TriggerPolicy(ctx context.Context, dataType string) (domain.RetentionJob, error) {
	policy, err := s.policies.Get(ctx, strings.TrimSpace(dataType))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RetentionJob{}, ErrRetentionPolicyNotFound
		}
		return domain.RetentionJob{}, fmt.Errorf("load retention policy: %w", err)
	}
	return s.ExecuteRetentionPolicy(ctx, *policy, domain.RetentionTriggerManual)
}

// CleanupExpiredSessions purges expired sessions from the durable mirror in batches and prunes the
// cache's per-user indexes. It returns the number of mirror rows removed.
func (s *RetentionService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, err := s.mirror.DeleteExpired(ctx, now, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired sessions: %w", err)
		}
		total += removed
		if removed < s.batchSize {
			break
		}
	}

	pruned, err := s.cache.PruneExpired(ctx, now)
	if err != nil {
		return total, fmt.Errorf("prune session cache: %w", err)
	}

	if total > 0 || pruned > 0 {
		s.logger.Info("expired sessions purged", zap.Int("mirror", total), zap.Int("cache_index", pruned))
	}
	return total, nil
}

// RetentionStatus lists each policy with its latest job and the number of records currently overdue.
func (s *RetentionService) RetentionStatus(ctx context.Context) ([]PolicyStatus, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}

	now := s.now()
	statuses := make([]PolicyStatus, 0, len(policies))
	for _, policy := range policies {
		status := PolicyStatus{Policy: policy}

		job, err := s.jobs.Latest(ctx, policy.DataType)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("latest retention job %s: %w", policy.DataType, err)
		default:
			status.LastJob = job
		}

		overdue, err := s.records.CountOverdue(ctx, policy, policy.Cutoff(now))
		if err != nil {
			return nil, fmt.Errorf("count overdue %s: %w", policy.DataType, err)
		}
		status.Overdue = overdue
		statuses = append(statuses, status)
	}
	return statuses, nil
}
