package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
)

func TestAuditRepository_InsertSerializesPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)
	userID := "user-1"
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO compliance\.audit_log`).
		WithArgs(
			"evt-1",
			domain.EventLoginFailed,
			userID,
			nil,
			domain.RiskMedium,
			[]byte(`{"email":"jane@example.com"}`),
			"auth",
			nil,
			at,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Insert(context.Background(), domain.AuditEvent{
		ID:        "evt-1",
		Type:      domain.EventLoginFailed,
		UserID:    &userID,
		Risk:      domain.RiskMedium,
		Payload:   map[string]any{"email": "jane@example.com"},
		Source:    "auth",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditRepository_CountByPayloadKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditRepository(mock)
	since := time.Now().UTC().Add(-time.Hour)

	mock.ExpectQuery(`SELECT payload ->> \$2 AS grouping_key`).
		WithArgs(domain.EventLoginFailed, "ip_address", since, 5).
		WillReturnRows(pgxmock.NewRows([]string{"grouping_key", "count"}).
			AddRow("203.0.113.7", 9).
			AddRow("198.51.100.2", 5))

	counts, err := repo.CountByPayloadKey(context.Background(), domain.EventLoginFailed, "ip_address", since, 5)
	if err != nil {
		t.Fatalf("CountByPayloadKey returned error: %v", err)
	}
	if counts["203.0.113.7"] != 9 || counts["198.51.100.2"] != 5 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAlertRepository_AcknowledgeKeepsFirstStamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAlertRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE compliance\.security_alerts SET acknowledged_at = COALESCE\(acknowledged_at, \$1\) WHERE id = \$2`).
		WithArgs(at, "alert-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Acknowledge(context.Background(), "alert-1", at); err != nil {
		t.Fatalf("Acknowledge returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReportRepository_LatestDecodesSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewReportRepository(mock)
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows := pgxmock.NewRows(reportColumns).AddRow(
		"report-1",
		"monthly",
		start,
		end,
		[]byte(`{"total_users":10,"consent_rate":80}`),
		[]byte(`[{"type":"consent_rate","severity":"high","description":"low consent","count":2}]`),
		[]byte(`["collect consent"]`),
		end,
	)

	mock.ExpectQuery(`SELECT .*FROM compliance\.compliance_reports WHERE report_type = \$1 ORDER BY generated_at DESC LIMIT 1`).
		WithArgs("monthly").
		WillReturnRows(rows)

	report, err := repo.Latest(context.Background(), "monthly")
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if report.Metrics.TotalUsers != 10 || report.Metrics.ConsentRate != 80 {
		t.Fatalf("unexpected metrics %+v", report.Metrics)
	}
	if !report.HasSevereViolation() {
		t.Fatalf("expected severe violation to be decoded")
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("expected one recommendation, got %v", report.Recommendations)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
