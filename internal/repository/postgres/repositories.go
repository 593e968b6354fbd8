package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users            *UserRepository
	Tokens           *TokenRepository
	Sessions         *SessionRepository
	Consents         *ConsentRepository
	PrivacyRequests  *PrivacyRequestRepository
	LegalHolds       *LegalHoldRepository
	Responses        *ResponseRepository
	RetentionPolicy  *RetentionPolicyRepository
	RetentionJobs    *RetentionJobRepository
	RetentionRecords *RetentionRecordRepository
	Audit            *AuditRepository
	Alerts           *AlertRepository
	Reports          *ReportRepository
	Stats            *ComplianceStatsRepository
	Tx               *Transactor
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:            NewUserRepository(pool),
		Tokens:           NewTokenRepository(pool),
		Sessions:         NewSessionRepository(pool),
		Consents:         NewConsentRepository(pool),
		PrivacyRequests:  NewPrivacyRequestRepository(pool),
		LegalHolds:       NewLegalHoldRepository(pool),
		Responses:        NewResponseRepository(pool),
		RetentionPolicy:  NewRetentionPolicyRepository(pool),
		RetentionJobs:    NewRetentionJobRepository(pool),
		RetentionRecords: NewRetentionRecordRepository(pool),
		Audit:            NewAuditRepository(pool),
		Alerts:           NewAlertRepository(pool),
		Reports:          NewReportRepository(pool),
		Stats:            NewComplianceStatsRepository(pool),
		Tx:               NewTransactor(pool),
	}
}
