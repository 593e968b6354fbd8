package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transactor opens a transaction and hands out repositories bound to it.
type Transactor struct {
	db txBeginner
}

func NewTransactor(db txBeginner) *Transactor {
	return &Transactor{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise, including on panic.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.TxScope) error) (err error) {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx, txScope{tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txScope struct {
	tx pgx.Tx
}

func (s txScope) Users() port.UserRepository { return NewUserRepository(s.tx) }

func (s txScope) Tokens() port.TokenRepository { return NewTokenRepository(s.tx) }

func (s txScope) Sessions() port.SessionRepository { return NewSessionRepository(s.tx) }

func (s txScope) Consents() port.ConsentRepository { return NewConsentRepository(s.tx) }

func (s txScope) PrivacyRequests() port.PrivacyRequestRepository {
	return NewPrivacyRequestRepository(s.tx)
}

func (s txScope) Erasure() port.ErasureRepository { return NewErasureRepository(s.tx) }

func (s txScope) RetentionRecords() port.RetentionRecordRepository {
	return NewRetentionRecordRepository(s.tx)
}

var _ port.Transactor = (*Transactor)(nil)
