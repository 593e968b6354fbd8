package port

import (
	"context"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

// RetentionPolicyRepository stores policy configuration. Policies are never deleted.
type RetentionPolicyRepository interface {
	Upsert(ctx context.Context, policy domain.RetentionPolicy) error
	List(ctx context.Context) ([]domain.RetentionPolicy, error)
	Get(ctx context.Context, dataType string) (*domain.RetentionPolicy, error)
}

// RetentionJobRepository records job history.
type RetentionJobRepository interface {
	Create(ctx context.Context, job domain.RetentionJob) error
	Update(ctx context.Context, job domain.RetentionJob) error
	Latest(ctx context.Context, dataType string) (*domain.RetentionJob, error)
	CountFailedBetween(ctx context.Context, start, end time.Time) (int, error)
}

// RetentionRecordRepository locates and transforms records governed by a policy.
type RetentionRecordRepository interface {
	// SelectExpired returns up to limit ids older than cutoff with id greater than afterID, honouring
	// the policy's exception tags and skipping rows the policy's method already handled. A tag the
	// data type cannot honour is an error.
	SelectExpired(ctx context.Context, policy domain.RetentionPolicy, cutoff time.Time, afterID string, limit int) ([]string, error)
	HardDelete(ctx context.Context, dataType string, id string) error
	SoftDelete(ctx context.Context, dataType string, id string, at time.Time) error
	Anonymize(ctx context.Context, dataType string, id string, at time.Time) error
	CountOverdue(ctx context.Context, policy domain.RetentionPolicy, cutoff time.Time) (int, error)
	Supports(dataType string) bool
	SupportsException(dataType, tag string) bool
}
