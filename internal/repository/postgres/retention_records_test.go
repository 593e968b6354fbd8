package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

func TestRetentionRecordRepository_SelectExpiredHonoursExceptions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := domain.RetentionPolicy{
		DataType:       DataTypeAuditLogs,
		RetentionDays:  365,
		DeletionMethod: domain.DeletionSoft,
		Exceptions:     []string{"security_incident", ExceptionLegalHold},
	}

	mock.ExpectQuery(`SELECT id FROM compliance\.audit_log WHERE .*created_at < \$1.*deleted_at IS NULL.*NOT \(risk_level IN .*NOT \(EXISTS \(SELECT 1 FROM compliance\.legal_holds h WHERE h\.user_id = compliance\.audit_log\.user_id .*id > \$4 ORDER BY id LIMIT 100`).
		WithArgs(cutoff, domain.RiskHigh, domain.RiskCritical, "evt-10").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("evt-11").AddRow("evt-12"))

	ids, err := repo.SelectExpired(context.Background(), policy, cutoff, "evt-10", 100)
	if err != nil {
		t.Fatalf("SelectExpired returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "evt-11" || ids[1] != "evt-12" {
		t.Fatalf("unexpected ids %v", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetentionRecordRepository_InactiveUsersSkipHeldAccounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	held := `NOT \(EXISTS \(SELECT 1 FROM compliance\.legal_holds h WHERE h\.user_id = compliance\.users\.id AND h\.active_from <= now\(\) AND \(h\.active_until IS NULL OR h\.active_until > now\(\)\)\)\)`

	// The hold predicate applies with or without the tag.
	for _, exceptions := range [][]string{nil, {ExceptionLegalHold}} {
		policy := domain.RetentionPolicy{
			DataType:       DataTypeInactiveUsers,
			RetentionDays:  1095,
			DeletionMethod: domain.DeletionHard,
			Exceptions:     exceptions,
		}
		mock.ExpectQuery(`SELECT id FROM compliance\.users WHERE \(COALESCE\(last_login, registered_at\) < \$1 AND ` + held + `\) ORDER BY id LIMIT 10`).
			WithArgs(cutoff).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

		ids, err := repo.SelectExpired(context.Background(), policy, cutoff, "", 10)
		if err != nil {
			t.Fatalf("SelectExpired(%v) returned error: %v", exceptions, err)
		}
		if len(ids) != 1 || ids[0] != "user-1" {
			t.Fatalf("unexpected ids %v", ids)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetentionRecordRepository_RejectsUnmappedExceptions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	policy := domain.RetentionPolicy{
		DataType:       DataTypeAssessmentResponses,
		RetentionDays:  30,
		DeletionMethod: domain.DeletionHard,
		Exceptions:     []string{"security_incident"},
	}

	if _, err := repo.SelectExpired(context.Background(), policy, time.Now(), "", 10); !errors.Is(err, repository.ErrUnsupported) {
		t.Fatalf("expected unmapped exception rejected, got %v", err)
	}
	if _, err := repo.CountOverdue(context.Background(), policy, time.Now()); !errors.Is(err, repository.ErrUnsupported) {
		t.Fatalf("expected unmapped exception rejected on count, got %v", err)
	}
	if !repo.SupportsException(DataTypeInactiveUsers, ExceptionLegalHold) || !repo.SupportsException(DataTypeAuditLogs, "security_incident") {
		t.Fatalf("expected mapped exceptions supported")
	}
	if repo.SupportsException(DataTypeAssessmentResponses, "security_incident") || repo.SupportsException("telemetry", ExceptionLegalHold) {
		t.Fatalf("unexpected exception support")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetentionRecordRepository_SelectExpiredOnlyTerminalPrivacyRequests(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := domain.RetentionPolicy{
		DataType:       DataTypePrivacyRequests,
		RetentionDays:  1095,
		DeletionMethod: domain.DeletionHard,
	}

	mock.ExpectQuery(`SELECT id FROM compliance\.privacy_requests WHERE .*submitted_at < \$1.*status IN`).
		WithArgs(cutoff, domain.PrivacyStatusCompleted, domain.PrivacyStatusRejected).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	ids, err := repo.SelectExpired(context.Background(), policy, cutoff, "", 50)
	if err != nil {
		t.Fatalf("SelectExpired returned error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetentionRecordRepository_Anonymize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	at := time.Now().UTC()
	query := `UPDATE compliance\.assessment_responses SET anonymized_at = \$1, ip_address = \$2, user_id = \$3 WHERE anonymized_at IS NULL AND id = \$4`

	mock.ExpectExec(query).WithArgs(at, nil, nil, "resp-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(query).WithArgs(at, nil, nil, "resp-1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Anonymize(context.Background(), DataTypeAssessmentResponses, "resp-1", at); err != nil {
		t.Fatalf("Anonymize returned error: %v", err)
	}
	if err := repo.Anonymize(context.Background(), DataTypeAssessmentResponses, "resp-1", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for already anonymized row, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetentionRecordRepository_UnsupportedMethods(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRetentionRecordRepository(mock)
	at := time.Now().UTC()

	if err := repo.Anonymize(context.Background(), DataTypeUserSessions, "s-1", at); !errors.Is(err, repository.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for session anonymization, got %v", err)
	}
	if err := repo.SoftDelete(context.Background(), DataTypePrivacyRequests, "p-1", at); !errors.Is(err, repository.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for privacy request soft delete, got %v", err)
	}
	if err := repo.HardDelete(context.Background(), "telemetry", "x"); !errors.Is(err, repository.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for unknown data type, got %v", err)
	}
	if repo.Supports("telemetry") || !repo.Supports(DataTypeInactiveUsers) {
		t.Fatalf("unexpected Supports result")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
