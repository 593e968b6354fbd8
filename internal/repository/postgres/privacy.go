package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

var privacyRequestColumns = []string{
	"id",
	"user_id",
	"request_type",
	"status",
	"submitted_at",
	"completed_at",
	"request_data",
	"response_data",
	"reason",
}

// PrivacyRequestRepository persists data-subject requests.
type PrivacyRequestRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewPrivacyRequestRepository(exec pgExecutor) *PrivacyRequestRepository {
	return &PrivacyRequestRepository{exec: exec, builder: newBuilder()}
}

func (r *PrivacyRequestRepository) WithTx(tx pgx.Tx) *PrivacyRequestRepository {
	if tx == nil {
		return r
	}
	return &PrivacyRequestRepository{exec: tx, builder: r.builder}
}

func (r *PrivacyRequestRepository) Create(ctx context.Context, request domain.PrivacyRequest) error {
	requestData, err := marshalMap(request.RequestData)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("compliance.privacy_requests").
		Columns("id", "user_id", "request_type", "status", "submitted_at", "request_data").
		Values(request.ID, request.UserID, request.Type, request.Status, request.SubmittedAt.UTC(), requestData).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert privacy request sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert privacy request: %w", translateError(err))
	}
	return nil
}

func (r *PrivacyRequestRepository) Get(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	stmt, args, err := r.builder.
		Select(privacyRequestColumns...).
		From("compliance.privacy_requests").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select privacy request sql: %w", err)
	}

	request, err := scanPrivacyRequest(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return request, nil
}

// Update writes the mutable state of a request. The owner and submission fields never change.
func (r *PrivacyRequestRepository) Update(ctx context.Context, request domain.PrivacyRequest) error {
	responseData, err := marshalMap(request.ResponseData)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("compliance.privacy_requests").
		Set("status", request.Status).
		Set("completed_at", optionalTime(request.CompletedAt)).
		Set("response_data", responseData).
		Set("reason", optionalString(request.Reason)).
		Where(squirrel.Eq{"id": request.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update privacy request sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update privacy request: %w", err)
	}
	return requireAffected(tag)
}

// ListPendingBefore returns open requests submitted before the cutoff, oldest first.
func (r *PrivacyRequestRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.PrivacyRequest, error) {
	builder := r.builder.
		Select(privacyRequestColumns...).
		From("compliance.privacy_requests").
		Where(squirrel.Eq{"status": []domain.PrivacyRequestStatus{domain.PrivacyStatusPending, domain.PrivacyStatusProcessing}}).
		Where(squirrel.Lt{"submitted_at": before.UTC()}).
		OrderBy("submitted_at")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending privacy requests sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending privacy requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.PrivacyRequest, 0)
	for rows.Next() {
		request, err := scanPrivacyRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan privacy request: %w", err)
		}
		requests = append(requests, *request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate privacy requests: %w", err)
	}
	return requests, nil
}

func scanPrivacyRequest(row pgx.Row) (*domain.PrivacyRequest, error) {
	var (
		request      domain.PrivacyRequest
		userID       sql.NullString
		completedAt  sql.NullTime
		requestData  []byte
		responseData []byte
		reason       sql.NullString
	)

	if err := row.Scan(
		&request.ID,
		&userID,
		&request.Type,
		&request.Status,
		&request.SubmittedAt,
		&completedAt,
		&requestData,
		&responseData,
		&reason,
	); err != nil {
		return nil, err
	}

	var err error
	if request.RequestData, err = unmarshalMap(requestData); err != nil {
		return nil, err
	}
	if request.ResponseData, err = unmarshalMap(responseData); err != nil {
		return nil, err
	}
	if userID.Valid {
		request.UserID = userID.String
	}
	request.CompletedAt = nullableTimePtr(completedAt)
	request.Reason = nullableStringPtr(reason)

	return &request, nil
}

// LegalHoldRepository lists holds that block erasure.
type LegalHoldRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewLegalHoldRepository(exec pgExecutor) *LegalHoldRepository {
	return &LegalHoldRepository{exec: exec, builder: newBuilder()}
}

func (r *LegalHoldRepository) Create(ctx context.Context, hold domain.LegalHold) error {
	stmt, args, err := r.builder.Insert("compliance.legal_holds").
		Columns("id", "user_id", "reason", "active_from", "active_until").
		Values(hold.ID, hold.UserID, hold.Reason, hold.ActiveFrom.UTC(), optionalTime(hold.ActiveUntil)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert legal hold sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert legal hold: %w", translateError(err))
	}
	return nil
}

// ListActive returns holds in force at the supplied moment.
func (r *LegalHoldRepository) ListActive(ctx context.Context, userID string, at time.Time) ([]domain.LegalHold, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "reason", "active_from", "active_until").
		From("compliance.legal_holds").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.LtOrEq{"active_from": at.UTC()}).
		Where(squirrel.Or{squirrel.Eq{"active_until": nil}, squirrel.Gt{"active_until": at.UTC()}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list legal holds sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query legal holds: %w", err)
	}
	defer rows.Close()

	holds := make([]domain.LegalHold, 0)
	for rows.Next() {
		var (
			hold  domain.LegalHold
			until sql.NullTime
		)
		if err := rows.Scan(&hold.ID, &hold.UserID, &hold.Reason, &hold.ActiveFrom, &until); err != nil {
			return nil, fmt.Errorf("scan legal hold: %w", err)
		}
		hold.ActiveUntil = nullableTimePtr(until)
		holds = append(holds, hold)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legal holds: %w", err)
	}
	return holds, nil
}

// ResponseRepository reads stored assessment responses.
type ResponseRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewResponseRepository(exec pgExecutor) *ResponseRepository {
	return &ResponseRepository{exec: exec, builder: newBuilder()}
}

// ListByUser returns the user's live responses, newest first.
func (r *ResponseRepository) ListByUser(ctx context.Context, userID string) ([]domain.AssessmentResponse, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "assessment", "answers", "submitted_at").
		From("compliance.assessment_responses").
		Where(squirrel.Eq{"user_id": userID}).
		Where("deleted_at IS NULL").
		OrderBy("submitted_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list responses sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	responses := make([]domain.AssessmentResponse, 0)
	for rows.Next() {
		var (
			response domain.AssessmentResponse
			owner    sql.NullString
			answers  []byte
		)
		if err := rows.Scan(&response.ID, &owner, &response.Assessment, &answers, &response.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &response.Answers); err != nil {
				return nil, fmt.Errorf("unmarshal response answers: %w", err)
			}
		}
		response.UserID = nullableStringPtr(owner)
		responses = append(responses, response)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return responses, nil
}

var (
	_ port.PrivacyRequestRepository = (*PrivacyRequestRepository)(nil)
	_ port.LegalHoldRepository      = (*LegalHoldRepository)(nil)
	_ port.ResponseRepository       = (*ResponseRepository)(nil)
)
