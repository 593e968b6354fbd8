package usecase

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

// retentionRow is a governed record of some data type.
type retentionRow struct {
	id         string
	at         time.Time
	deleted    bool
	anonymized bool
	protected  []string
}

// memoryState is everything the relational store holds. It is copied wholesale for rollback.
type memoryState struct {
	users         map[string]domain.User
	history       map[string][]domain.UserPasswordHistory
	verifications map[string]domain.VerificationToken
	resets        map[string]domain.PasswordResetToken
	sessions      map[string]domain.Session
	consents      map[string]domain.ConsentRecord
	requests      map[string]domain.PrivacyRequest
	holds         []domain.LegalHold
	responses     map[string]domain.AssessmentResponse
	rows          map[string]map[string]retentionRow
	policies      map[string]domain.RetentionPolicy
	jobs          map[string]domain.RetentionJob
	audit         []domain.AuditEvent
	alerts        map[string]domain.SecurityAlert
	reports       map[string]domain.ComplianceReport
}

func newMemoryState() memoryState {
	return memoryState{
		users:         map[string]domain.User{},
		history:       map[string][]domain.UserPasswordHistory{},
		verifications: map[string]domain.VerificationToken{},
		resets:        map[string]domain.PasswordResetToken{},
		sessions:      map[string]domain.Session{},
		consents:      map[string]domain.ConsentRecord{},
		requests:      map[string]domain.PrivacyRequest{},
		responses:     map[string]domain.AssessmentResponse{},
		rows:          map[string]map[string]retentionRow{},
		policies:      map[string]domain.RetentionPolicy{},
		jobs:          map[string]domain.RetentionJob{},
		alerts:        map[string]domain.SecurityAlert{},
		reports:       map[string]domain.ComplianceReport{},
	}
}

func (st memoryState) clone() memoryState {
	out := memoryState{
		users:         maps.Clone(st.users),
		history:       map[string][]domain.UserPasswordHistory{},
		verifications: maps.Clone(st.verifications),
		resets:        maps.Clone(st.resets),
		sessions:      maps.Clone(st.sessions),
		consents:      maps.Clone(st.consents),
		requests:      maps.Clone(st.requests),
		holds:         append([]domain.LegalHold(nil), st.holds...),
		responses:     maps.Clone(st.responses),
		rows:          map[string]map[string]retentionRow{},
		policies:      maps.Clone(st.policies),
		jobs:          maps.Clone(st.jobs),
		audit:         append([]domain.AuditEvent(nil), st.audit...),
		alerts:        maps.Clone(st.alerts),
		reports:       maps.Clone(st.reports),
	}
	for k, v := range st.history {
		out.history[k] = append([]domain.UserPasswordHistory(nil), v...)
	}
	for k, v := range st.rows {
		out.rows[k] = maps.Clone(v)
	}
	return out
}

// memoryStore implements every relational port over memoryState. failures injects an error for
// an operation named "<repo>.<Method>".
type memoryStore struct {
	mu       sync.Mutex
	state    memoryState
	failures map[string]error
	txCount  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: newMemoryState(), failures: map[string]error{}}
}

func (m *memoryStore) fail(op string, err error) {
	m.mu.Lock()
	m.failures[op] = err
	m.mu.Unlock()
}

// check must be called with mu held.
func (m *memoryStore) check(op string) error {
	return m.failures[op]
}

func (m *memoryStore) users() *memUsers { return &memUsers{m} }
func (m *memoryStore) tokens() *memTokens { return &memTokens{m} }
func (m *memoryStore) sessionMirror() *memSessions { return &memSessions{m} }
func (m *memoryStore) consentRepo() *memConsents { return &memConsents{m} }
func (m *memoryStore) requestRepo() *memRequests { return &memRequests{m} }
func (m *memoryStore) holdRepo() *memHolds { return &memHolds{m} }
func (m *memoryStore) responseRepo() *memResponses { return &memResponses{m} }
func (m *memoryStore) erasure() *memErasure { return &memErasure{m} }
func (m *memoryStore) retentionRows() *memRows { return &memRows{m} }
func (m *memoryStore) policyRepo() *memPolicies { return &memPolicies{m} }
func (m *memoryStore) jobRepo() *memJobs { return &memJobs{m} }
func (m *memoryStore) auditRepo() *memAudit { return &memAudit{m} }
func (m *memoryStore) alertRepo() *memAlerts { return &memAlerts{m} }
func (m *memoryStore) reportRepo() *memReports { return &memReports{m} }
func (m *memoryStore) transactor() *memTransactor { return &memTransactor{m} }
func (m *memoryStore) statsRepo() *memStats { return &memStats{m} }

// memTransactor restores the whole state when fn fails.
type memTransactor struct{ m *memoryStore }

func (t *memTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.TxScope) error) error {
	t.m.mu.Lock()
	snapshot := t.m.state.clone()
	t.m.txCount++
	t.m.mu.Unlock()

	if err := fn(ctx, memScope{t.m}); err != nil {
		t.m.mu.Lock()
		t.m.state = snapshot
		t.m.mu.Unlock()
		return err
	}
	return nil
}

type memScope struct{ m *memoryStore }

func (s memScope) Users() port.UserRepository { return s.m.users() }
func (s memScope) Tokens() port.TokenRepository { return s.m.tokens() }
func (s memScope) Sessions() port.SessionRepository { return s.m.sessionMirror() }
func (s memScope) Consents() port.ConsentRepository { return s.m.consentRepo() }
func (s memScope) PrivacyRequests() port.PrivacyRequestRepository { return s.m.requestRepo() }
func (s memScope) Erasure() port.ErasureRepository { return s.m.erasure() }
func (s memScope) RetentionRecords() port.RetentionRecordRepository { return s.m.retentionRows() }

// Users.

type memUsers struct{ m *memoryStore }

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("users.Create"); err != nil {
		return err
	}
	for _, existing := range r.m.state.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	r.m.state.users[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, user := range r.m.state.users {
		if user.Email == email {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) mutate(op, id string, fn func(*domain.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check(op); err != nil {
		return err
	}
	user, ok := r.m.state.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&user)
	r.m.state.users[id] = user
	return nil
}

func (r *memUsers) UpdateStatus(_ context.Context, id string, status domain.UserStatus) error {
	return r.mutate("users.UpdateStatus", id, func(u *domain.User) { u.Status = status })
}

func (r *memUsers) SetLocked(_ context.Context, id string, locked bool) error {
	return r.mutate("users.SetLocked", id, func(u *domain.User) { u.Locked = locked })
}

func (r *memUsers) MarkEmailVerified(_ context.Context, id string, _ time.Time) error {
	return r.mutate("users.MarkEmailVerified", id, func(u *domain.User) {
		u.EmailVerified = true
		if u.Status == domain.UserStatusPending {
			u.Status = domain.UserStatusActive
		}
	})
}

func (r *memUsers) UpdatePassword(_ context.Context, id, hash, algo string, changedAt time.Time) error {
	return r.mutate("users.UpdatePassword", id, func(u *domain.User) {
		u.PasswordHash = hash
		u.PasswordAlgo = algo
		u.PasswordChangedAt = changedAt
	})
}

func (r *memUsers) UpdateProfile(_ context.Context, id string, fields map[string]*string) error {
	return r.mutate("users.UpdateProfile", id, func(u *domain.User) {
		for name, value := range fields {
			switch name {
			case "first_name":
				u.FirstName = value
			case "last_name":
				u.LastName = value
			case "company":
				u.Company = value
			case "phone":
				u.Phone = value
			}
		}
	})
}

func (r *memUsers) RecordLogin(_ context.Context, id string, at time.Time) error {
	return r.mutate("users.RecordLogin", id, func(u *domain.User) { u.LastLogin = &at })
}

func (r *memUsers) AddPasswordHistory(_ context.Context, entry domain.UserPasswordHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("users.AddPasswordHistory"); err != nil {
		return err
	}
	r.m.state.history[entry.UserID] = append([]domain.UserPasswordHistory{entry}, r.m.state.history[entry.UserID]...)
	return nil
}

func (r *memUsers) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entries := r.m.state.history[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]domain.UserPasswordHistory(nil), entries...), nil
}

// Tokens.

type memTokens struct{ m *memoryStore }

func (r *memTokens) CreateVerification(_ context.Context, token domain.VerificationToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("tokens.CreateVerification"); err != nil {
		return err
	}
	r.m.state.verifications[token.ID] = token
	return nil
}

func (r *memTokens) GetVerificationByHash(_ context.Context, hash string) (*domain.VerificationToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, token := range r.m.state.verifications {
		if token.TokenHash == hash {
			copied := token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTokens) ConsumeVerification(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token, ok := r.m.state.verifications[id]
	if !ok || !token.Consume(time.Now()) {
		return repository.ErrNotFound
	}
	r.m.state.verifications[id] = token
	return nil
}

func (r *memTokens) CreatePasswordReset(_ context.Context, token domain.PasswordResetToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.resets[token.ID] = token
	return nil
}

func (r *memTokens) GetPasswordResetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, token := range r.m.state.resets {
		if token.TokenHash == hash {
			copied := token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTokens) ConsumePasswordReset(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	token, ok := r.m.state.resets[id]
	if !ok || !token.Consume(time.Now()) {
		return repository.ErrNotFound
	}
	r.m.state.resets[id] = token
	return nil
}

func (r *memTokens) InvalidatePasswordResets(_ context.Context, userID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	count := 0
	for id, token := range r.m.state.resets {
		if token.UserID == userID && token.Consume(time.Now()) {
			r.m.state.resets[id] = token
			count++
		}
	}
	return count, nil
}

// Session mirror.

type memSessions struct{ m *memoryStore }

func (r *memSessions) Create(_ context.Context, session domain.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("sessions.Create"); err != nil {
		return err
	}
	r.m.state.sessions[session.ID] = session
	return nil
}

func (r *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.state.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r *memSessions) Revoke(_ context.Context, id, reason string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.state.sessions[id]
	if !ok {
		return nil
	}
	session.Revoke(at, reason)
	r.m.state.sessions[id] = session
	return nil
}

func (r *memSessions) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.state.sessions, id)
	return nil
}

func (r *memSessions) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("sessions.RevokeAllForUser"); err != nil {
		return 0, err
	}
	count := 0
	for id, session := range r.m.state.sessions {
		if session.UserID == userID && session.Revoke(at, reason) {
			r.m.state.sessions[id] = session
			count++
		}
	}
	return count, nil
}

func (r *memSessions) Summary(_ context.Context, userID string, at time.Time) (domain.SessionSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var summary domain.SessionSummary
	for _, session := range r.m.state.sessions {
		if session.UserID != userID {
			continue
		}
		summary.Total++
		if session.IsActive(at) {
			summary.Active++
		}
		seen := session.LastSeen
		if summary.LastActive == nil || seen.After(*summary.LastActive) {
			summary.LastActive = &seen
		}
	}
	return summary, nil
}

func (r *memSessions) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	removed := 0
	for _, id := range sortedKeys(r.m.state.sessions) {
		if limit > 0 && removed >= limit {
			break
		}
		if r.m.state.sessions[id].ExpiresAt.Before(before) {
			delete(r.m.state.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Consents.

type memConsents struct{ m *memoryStore }

func consentKey(userID string, t domain.ConsentType) string { return userID + "|" + string(t) }

func (r *memConsents) Upsert(_ context.Context, record domain.ConsentRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("consents.Upsert"); err != nil {
		return err
	}
	record.WithdrawnAt = nil
	r.m.state.consents[consentKey(record.UserID, record.Type)] = record
	return nil
}

func (r *memConsents) Get(_ context.Context, userID string, t domain.ConsentType) (*domain.ConsentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	record, ok := r.m.state.consents[consentKey(userID, t)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (r *memConsents) ListByUser(_ context.Context, userID string) ([]domain.ConsentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.ConsentRecord
	for _, key := range sortedKeys(r.m.state.consents) {
		if record := r.m.state.consents[key]; record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memConsents) Withdraw(_ context.Context, userID string, t domain.ConsentType, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := consentKey(userID, t)
	record, ok := r.m.state.consents[key]
	if !ok {
		return repository.ErrNotFound
	}
	record.Given = false
	record.WithdrawnAt = &at
	r.m.state.consents[key] = record
	return nil
}

// Privacy requests and legal holds.

type memRequests struct{ m *memoryStore }

func (r *memRequests) Create(_ context.Context, request domain.PrivacyRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.requests[request.ID] = request
	return nil
}

func (r *memRequests) Get(_ context.Context, id string) (*domain.PrivacyRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	request, ok := r.m.state.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &request, nil
}

func (r *memRequests) Update(_ context.Context, request domain.PrivacyRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("requests.Update." + string(request.Status)); err != nil {
		return err
	}
	if _, ok := r.m.state.requests[request.ID]; !ok {
		return repository.ErrNotFound
	}
	r.m.state.requests[request.ID] = request
	return nil
}

func (r *memRequests) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]domain.PrivacyRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.PrivacyRequest
	for _, id := range sortedKeys(r.m.state.requests) {
		request := r.m.state.requests[id]
		if request.Status.Terminal() || !request.SubmittedAt.Before(before) {
			continue
		}
		out = append(out, request)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memHolds struct{ m *memoryStore }

func (r *memHolds) Create(_ context.Context, hold domain.LegalHold) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.holds = append(r.m.state.holds, hold)
	return nil
}

func (r *memHolds) ListActive(_ context.Context, userID string, at time.Time) ([]domain.LegalHold, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.LegalHold
	for _, hold := range r.m.state.holds {
		if hold.UserID == userID && hold.ActiveAt(at) {
			out = append(out, hold)
		}
	}
	return out, nil
}

type memResponses struct{ m *memoryStore }

func (r *memResponses) ListByUser(_ context.Context, userID string) ([]domain.AssessmentResponse, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.AssessmentResponse
	for _, id := range sortedKeys(r.m.state.responses) {
		response := r.m.state.responses[id]
		if response.UserID != nil && *response.UserID == userID {
			out = append(out, response)
		}
	}
	return out, nil
}

// memErasure removes every row referencing the user, like the cascading schema does.
type memErasure struct{ m *memoryStore }

func (r *memErasure) EraseUser(_ context.Context, userID string) (port.ErasureSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var summary port.ErasureSummary
	for id, response := range r.m.state.responses {
		if response.UserID != nil && *response.UserID == userID {
			delete(r.m.state.responses, id)
			summary.Responses++
		}
	}
	for key, record := range r.m.state.consents {
		if record.UserID == userID {
			delete(r.m.state.consents, key)
			summary.Consents++
		}
	}
	for id, session := range r.m.state.sessions {
		if session.UserID == userID {
			delete(r.m.state.sessions, id)
			summary.Sessions++
		}
	}
	for i, event := range r.m.state.audit {
		if event.UserID != nil && *event.UserID == userID {
			r.m.state.audit[i].UserID = nil
			summary.AuditDetached++
		}
	}
	for id, token := range r.m.state.verifications {
		if token.UserID == userID {
			delete(r.m.state.verifications, id)
			summary.Tokens++
		}
	}

	// Failures are injected after the partial work so rollback is observable.
	if err := r.m.check("erasure.EraseUser"); err != nil {
		return summary, err
	}
	delete(r.m.state.users, userID)
	delete(r.m.state.history, userID)
	return summary, nil
}

// Retention.

type memRows struct{ m *memoryStore }

func (r *memRows) add(dataType string, row retentionRow) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.state.rows[dataType] == nil {
		r.m.state.rows[dataType] = map[string]retentionRow{}
	}
	r.m.state.rows[dataType][row.id] = row
}

func (r *memRows) Supports(dataType string) bool {
	switch dataType {
	case "assessment_responses", "user_sessions", "audit_logs", "privacy_requests", "inactive_users":
		return true
	}
	return false
}

// memExceptions mirrors the exception tags the relational store honours per data type.
var memExceptions = map[string][]string{
	"assessment_responses": {"legal_hold"},
	"user_sessions":        {"legal_hold"},
	"audit_logs":           {"legal_hold", "security_incident"},
	"privacy_requests":     {"legal_hold"},
	"inactive_users":       {"legal_hold"},
}

func (r *memRows) SupportsException(dataType, tag string) bool {
	for _, known := range memExceptions[dataType] {
		if known == tag {
			return true
		}
	}
	return false
}

func (r *memRows) eligible(policy domain.RetentionPolicy, row retentionRow, cutoff time.Time) bool {
	if !row.at.Before(cutoff) {
		return false
	}
	switch policy.DeletionMethod {
	case domain.DeletionAnonymize:
		if row.anonymized {
			return false
		}
	case domain.DeletionSoft:
		if row.deleted {
			return false
		}
	}
	for _, tag := range row.protected {
		if policy.HasException(tag) {
			return false
		}
		// Held accounts are never expired.
		if policy.DataType == "inactive_users" && tag == "legal_hold" {
			return false
		}
	}
	return true
}

func (r *memRows) SelectExpired(_ context.Context, policy domain.RetentionPolicy, cutoff time.Time, afterID string, limit int) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("rows.SelectExpired"); err != nil {
		return nil, err
	}
	rows := r.m.state.rows[policy.DataType]
	var ids []string
	for _, id := range sortedKeys(rows) {
		if id <= afterID || !r.eligible(policy, rows[id], cutoff) {
			continue
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

func (r *memRows) CountOverdue(_ context.Context, policy domain.RetentionPolicy, cutoff time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	count := 0
	for _, row := range r.m.state.rows[policy.DataType] {
		if r.eligible(policy, row, cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *memRows) HardDelete(_ context.Context, dataType, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("rows.HardDelete." + id); err != nil {
		return err
	}
	if _, ok := r.m.state.rows[dataType][id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m.state.rows[dataType], id)
	return nil
}

func (r *memRows) SoftDelete(_ context.Context, dataType, id string, _ time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	row, ok := r.m.state.rows[dataType][id]
	if !ok || row.deleted {
		return repository.ErrNotFound
	}
	row.deleted = true
	r.m.state.rows[dataType][id] = row
	return nil
}

func (r *memRows) Anonymize(_ context.Context, dataType, id string, _ time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("rows.Anonymize." + id); err != nil {
		return err
	}
	row, ok := r.m.state.rows[dataType][id]
	if !ok || row.anonymized {
		return repository.ErrNotFound
	}
	row.anonymized = true
	r.m.state.rows[dataType][id] = row
	return nil
}

type memPolicies struct{ m *memoryStore }

func (r *memPolicies) Upsert(_ context.Context, policy domain.RetentionPolicy) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.policies[policy.DataType] = policy
	return nil
}

func (r *memPolicies) List(_ context.Context) ([]domain.RetentionPolicy, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]domain.RetentionPolicy, 0, len(r.m.state.policies))
	for _, key := range sortedKeys(r.m.state.policies) {
		out = append(out, r.m.state.policies[key])
	}
	return out, nil
}

func (r *memPolicies) Get(_ context.Context, dataType string) (*domain.RetentionPolicy, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	policy, ok := r.m.state.policies[dataType]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &policy, nil
}

type memJobs struct{ m *memoryStore }

func (r *memJobs) Create(_ context.Context, job domain.RetentionJob) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.jobs[job.ID] = job
	return nil
}

func (r *memJobs) Update(_ context.Context, job domain.RetentionJob) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.state.jobs[job.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Status.Terminal() {
		return fmt.Errorf("job %s is terminal", job.ID)
	}
	job.Errors = append([]string(nil), job.Errors...)
	r.m.state.jobs[job.ID] = job
	return nil
}

func (r *memJobs) Latest(_ context.Context, dataType string) (*domain.RetentionJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var latest *domain.RetentionJob
	for _, id := range sortedKeys(r.m.state.jobs) {
		if job := r.m.state.jobs[id]; job.DataType == dataType {
			copied := job
			latest = &copied
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *memJobs) CountFailedBetween(_ context.Context, start, end time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	count := 0
	for _, job := range r.m.state.jobs {
		if job.Status == domain.RetentionJobFailed && job.StartedAt != nil &&
			!job.StartedAt.Before(start) && job.StartedAt.Before(end) {
			count++
		}
	}
	return count, nil
}

// Audit, alerts and reports.

type memAudit struct{ m *memoryStore }

func (r *memAudit) Insert(_ context.Context, event domain.AuditEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.check("audit.Insert"); err != nil {
		return err
	}
	r.m.state.audit = append(r.m.state.audit, event)
	return nil
}

func (r *memAudit) ListByUser(_ context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.AuditEvent
	for i := len(r.m.state.audit) - 1; i >= 0; i-- {
		event := r.m.state.audit[i]
		if event.UserID != nil && *event.UserID == userID {
			out = append(out, event)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memAudit) CountByRisk(_ context.Context, start, end time.Time) (map[domain.RiskLevel]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[domain.RiskLevel]int{}
	for _, event := range r.m.state.audit {
		if !event.CreatedAt.Before(start) && event.CreatedAt.Before(end) {
			out[event.Risk]++
		}
	}
	return out, nil
}

func (r *memAudit) CountByPayloadKey(_ context.Context, eventType, key string, since time.Time, minCount int) (map[string]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := map[string]int{}
	for _, event := range r.m.state.audit {
		if event.Type != eventType || event.CreatedAt.Before(since) {
			continue
		}
		if value, ok := event.Payload[key].(string); ok {
			counts[value]++
		}
	}
	return filterMin(counts, minCount), nil
}

func (r *memAudit) CountByUser(_ context.Context, eventType string, since time.Time, minCount int) (map[string]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := map[string]int{}
	for _, event := range r.m.state.audit {
		if event.Type == eventType && !event.CreatedAt.Before(since) && event.UserID != nil {
			counts[*event.UserID]++
		}
	}
	return filterMin(counts, minCount), nil
}

func filterMin(counts map[string]int, minCount int) map[string]int {
	for k, v := range counts {
		if v < minCount {
			delete(counts, k)
		}
	}
	return counts
}

func (m *memoryStore) events(eventType string) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, event := range m.state.audit {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type memAlerts struct{ m *memoryStore }

func (r *memAlerts) Insert(_ context.Context, alert domain.SecurityAlert) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.alerts[alert.ID] = alert
	return nil
}

func (r *memAlerts) Get(_ context.Context, id string) (*domain.SecurityAlert, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	alert, ok := r.m.state.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &alert, nil
}

func (r *memAlerts) stamp(id string, fn func(*domain.SecurityAlert)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	alert, ok := r.m.state.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&alert)
	r.m.state.alerts[id] = alert
	return nil
}

func (r *memAlerts) Acknowledge(_ context.Context, id string, at time.Time) error {
	return r.stamp(id, func(a *domain.SecurityAlert) {
		if a.AcknowledgedAt == nil {
			a.AcknowledgedAt = &at
		}
	})
}

func (r *memAlerts) Resolve(_ context.Context, id string, at time.Time) error {
	return r.stamp(id, func(a *domain.SecurityAlert) {
		if a.ResolvedAt == nil {
			a.ResolvedAt = &at
		}
	})
}

func (r *memAlerts) ListSince(_ context.Context, since time.Time, limit int) ([]domain.SecurityAlert, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.SecurityAlert
	for _, id := range sortedKeys(r.m.state.alerts) {
		if alert := r.m.state.alerts[id]; !alert.TriggeredAt.Before(since) {
			out = append(out, alert)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAlerts) CountBySeverity(_ context.Context, start, end time.Time) (map[domain.AlertSeverity]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[domain.AlertSeverity]int{}
	for _, alert := range r.m.state.alerts {
		if !alert.TriggeredAt.Before(start) && alert.TriggeredAt.Before(end) {
			out[alert.Severity]++
		}
	}
	return out, nil
}

func (m *memoryStore) alertsOfType(alertType string) []domain.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SecurityAlert
	for _, id := range sortedKeys(m.state.alerts) {
		if alert := m.state.alerts[id]; alert.Type == alertType {
			out = append(out, alert)
		}
	}
	return out
}

type memReports struct{ m *memoryStore }

func (r *memReports) Insert(_ context.Context, report domain.ComplianceReport) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.reports[report.ID] = report
	return nil
}

func (r *memReports) Get(_ context.Context, id string) (*domain.ComplianceReport, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	report, ok := r.m.state.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &report, nil
}

func (r *memReports) Latest(_ context.Context, reportType string) (*domain.ComplianceReport, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var latest *domain.ComplianceReport
	for _, report := range r.m.state.reports {
		if report.Type != reportType {
			continue
		}
		if latest == nil || report.GeneratedAt.After(latest.GeneratedAt) {
			copied := report
			latest = &copied
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

// memStats derives report aggregates from the stored users, consents and requests.
type memStats struct{ m *memoryStore }

func (r *memStats) UserCounts(_ context.Context, start, end time.Time) (int, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	created := 0
	for _, user := range r.m.state.users {
		if !user.RegisteredAt.Before(start) && user.RegisteredAt.Before(end) {
			created++
		}
	}
	return len(r.m.state.users), created, nil
}

func (r *memStats) ConsentCounts(_ context.Context, t domain.ConsentType, start, end time.Time) (int, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	granted, withdrawn := 0, 0
	for _, record := range r.m.state.consents {
		if record.Type != t {
			continue
		}
		if record.Given && !record.ConsentDate.Before(start) && record.ConsentDate.Before(end) {
			granted++
		}
		if record.WithdrawnAt != nil && !record.WithdrawnAt.Before(start) && record.WithdrawnAt.Before(end) {
			withdrawn++
		}
	}
	return granted, withdrawn, nil
}

func (r *memStats) UsersMissingConsent(_ context.Context, t domain.ConsentType, validSince time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	missing := 0
	for id := range r.m.state.users {
		record, ok := r.m.state.consents[consentKey(id, t)]
		if !ok || !record.Given || record.ConsentDate.Before(validSince) {
			missing++
		}
	}
	return missing, nil
}

func (r *memStats) PrivacyRequestStats(_ context.Context, start, end time.Time) (int, int, int, float64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var total, completed, pending int
	var hours float64
	for _, request := range r.m.state.requests {
		if request.SubmittedAt.Before(start) || !request.SubmittedAt.Before(end) {
			continue
		}
		total++
		switch {
		case request.Status == domain.PrivacyStatusCompleted:
			completed++
			if request.CompletedAt != nil {
				hours += request.CompletedAt.Sub(request.SubmittedAt).Hours()
			}
		case !request.Status.Terminal():
			pending++
		}
	}
	avg := 0.0
	if completed > 0 {
		avg = hours / float64(completed)
	}
	return total, completed, pending, avg, nil
}

// plainHasher stores passwords with a visible prefix.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "plain$"+password, nil
}

// lengthPolicy accepts passwords of at least twelve characters.
type lengthPolicy struct{}

func (lengthPolicy) Validate(password string, pc domain.PasswordContext) error {
	if len(password) < 12 {
		return security.PasswordViolations{{Code: "min_length", Message: "password must be at least 12 characters"}}.DomainError()
	}
	if local, _, _ := strings.Cut(pc.Email, "@"); len(local) >= 6 && strings.Contains(strings.ToLower(password), local) {
		return security.PasswordViolations{{Code: "personal_data", Message: "password must not contain your email address or name"}}.DomainError()
	}
	return nil
}

var errInjected = errors.New("injected failure")

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
