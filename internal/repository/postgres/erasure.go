package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

// ErasureRepository removes every record that references a user. It must run inside a transaction;
// statements are ordered children first so foreign keys never block the final user delete.
type ErasureRepository struct {
	exec pgExecutor
}

func NewErasureRepository(exec pgExecutor) *ErasureRepository {
	return &ErasureRepository{exec: exec}
}

func (r *ErasureRepository) WithTx(tx pgx.Tx) *ErasureRepository {
	if tx == nil {
		return r
	}
	return &ErasureRepository{exec: tx}
}

// EraseUser deletes the user's responses, consents, sessions, tokens and history, detaches audit
// and privacy-request rows, then deletes the user. A missing user reports repository.ErrNotFound.
func (r *ErasureRepository) EraseUser(ctx context.Context, userID string) (port.ErasureSummary, error) {
	var summary port.ErasureSummary

	steps := []struct {
		label string
		stmt  string
		count *int
	}{
		{"delete responses", `DELETE FROM compliance.assessment_responses WHERE user_id = $1`, &summary.Responses},
		{"delete consents", `DELETE FROM compliance.consent_records WHERE user_id = $1`, &summary.Consents},
		{"delete sessions", `DELETE FROM compliance.sessions WHERE user_id = $1`, &summary.Sessions},
		{"delete verification tokens", `DELETE FROM compliance.email_verification_tokens WHERE user_id = $1`, &summary.Tokens},
		{"delete reset tokens", `DELETE FROM compliance.password_reset_tokens WHERE user_id = $1`, &summary.Tokens},
		{"delete password history", `DELETE FROM compliance.user_password_history WHERE user_id = $1`, nil},
		{"detach audit events", `UPDATE compliance.audit_log SET user_id = NULL, ip_address = NULL WHERE user_id = $1`, &summary.AuditDetached},
		{"detach privacy requests", `UPDATE compliance.privacy_requests SET user_id = NULL WHERE user_id = $1`, nil},
		{"delete legal holds", `DELETE FROM compliance.legal_holds WHERE user_id = $1`, nil},
	}

	for _, step := range steps {
		tag, err := r.exec.Exec(ctx, step.stmt, userID)
		if err != nil {
			return port.ErasureSummary{}, fmt.Errorf("%s: %w", step.label, err)
		}
		if step.count != nil {
			*step.count += int(tag.RowsAffected())
		}
	}

	tag, err := r.exec.Exec(ctx, `DELETE FROM compliance.users WHERE id = $1`, userID)
	if err != nil {
		return port.ErasureSummary{}, fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return port.ErasureSummary{}, repository.ErrNotFound
	}

	return summary, nil
}

var _ port.ErasureRepository = (*ErasureRepository)(nil)
