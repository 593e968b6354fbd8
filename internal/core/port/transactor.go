package port

import "context"

// TxScope exposes repositories bound to a single open transaction.
type TxScope interface {
	Users() UserRepository
	Tokens() TokenRepository
	Sessions() SessionRepository
	Consents() ConsentRepository
	PrivacyRequests() PrivacyRequestRepository
	Erasure() ErasureRepository
	RetentionRecords() RetentionRecordRepository
}

// Transactor runs fn inside one transaction, committing on nil and rolling back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxScope) error) error
}
