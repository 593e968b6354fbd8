package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

func TestTokenRepository_ConsumeVerificationOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewTokenRepository(mock)
	repo.now = func() time.Time { return now }

	query := `UPDATE compliance\.email_verification_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`
	mock.ExpectExec(query).WithArgs(now, "token-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(query).WithArgs(now, "token-1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.ConsumeVerification(context.Background(), "token-1"); err != nil {
		t.Fatalf("first consume returned error: %v", err)
	}
	if err := repo.ConsumeVerification(context.Background(), "token-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetPasswordResetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	created := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "token_hash", "ip_address", "created_at", "expires_at", "used_at"}).
		AddRow("reset-1", "user-1", "hash", "203.0.113.7", created, created.Add(time.Hour), nil)

	mock.ExpectQuery(`SELECT .*FROM compliance\.password_reset_tokens WHERE token_hash = \$1`).
		WithArgs("hash").
		WillReturnRows(rows)

	token, err := repo.GetPasswordResetByHash(context.Background(), "hash")
	if err != nil {
		t.Fatalf("GetPasswordResetByHash returned error: %v", err)
	}
	if token.IPAddress == nil || *token.IPAddress != "203.0.113.7" {
		t.Fatalf("expected ip address to be populated")
	}
	if token.UsedAt != nil {
		t.Fatalf("expected unused token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_InvalidatePasswordResets(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	now := time.Now().UTC()
	repo := NewTokenRepository(mock)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(`UPDATE compliance\.password_reset_tokens SET used_at = \$1 WHERE user_id = \$2 AND used_at IS NULL`).
		WithArgs(now, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	count, err := repo.InvalidatePasswordResets(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("InvalidatePasswordResets returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 invalidated tokens, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
