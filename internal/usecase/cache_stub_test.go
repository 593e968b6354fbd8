package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

// memoryCache stands in for the Redis session store. Entries expire with their TTL against the
// supplied clock.
type memoryCache struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]cachedSession
	byUser   map[string]map[string]struct{}
	failures map[string]error
}

type cachedSession struct {
	session domain.Session
	expires time.Time
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{
		now:      now,
		sessions: map[string]cachedSession{},
		byUser:   map[string]map[string]struct{}{},
		failures: map[string]error{},
	}
}

func (c *memoryCache) Save(_ context.Context, session domain.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures["Save"]; err != nil {
		return err
	}
	c.sessions[session.ID] = cachedSession{session: session, expires: c.now().Add(ttl)}
	if c.byUser[session.UserID] == nil {
		c.byUser[session.UserID] = map[string]struct{}{}
	}
	c.byUser[session.UserID][session.ID] = struct{}{}
	return nil
}

func (c *memoryCache) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[sessionID]
	if !ok || !c.now().Before(entry.expires) {
		return nil, repository.ErrNotFound
	}
	session := entry.session
	return &session, nil
}

// put stores a session without TTL bookkeeping so tests can plant stale records.
func (c *memoryCache) put(session domain.Session, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[session.ID] = cachedSession{session: session, expires: expires}
	if c.byUser[session.UserID] == nil {
		c.byUser[session.UserID] = map[string]struct{}{}
	}
	c.byUser[session.UserID][session.ID] = struct{}{}
}

func (c *memoryCache) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.sessions[sessionID]; ok {
		delete(c.byUser[entry.session.UserID], sessionID)
	}
	delete(c.sessions, sessionID)
	return nil
}

func (c *memoryCache) ListUserSessionIDs(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.byUser[userID]), nil
}

func (c *memoryCache) DeleteAllForUser(_ context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures["DeleteAllForUser"]; err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range sortedKeys(c.byUser[userID]) {
		if entry, ok := c.sessions[id]; ok && c.now().Before(entry.expires) {
			ids = append(ids, id)
		}
		delete(c.sessions, id)
	}
	delete(c.byUser, userID)
	return ids, nil
}

func (c *memoryCache) PruneExpired(_ context.Context, at time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pruned := 0
	for userID, ids := range c.byUser {
		for id := range ids {
			entry, ok := c.sessions[id]
			if !ok || !at.Before(entry.expires) {
				delete(ids, id)
				delete(c.sessions, id)
				pruned++
			}
		}
		if len(ids) == 0 {
			delete(c.byUser, userID)
		}
	}
	return pruned, nil
}

func (c *memoryCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// memoryAttempts mirrors the Redis script: the lockout is stamped on reaching the maximum, the
// record expires after the window and Check clears an elapsed lockout.
type memoryAttempts struct {
	mu      sync.Mutex
	records map[string]domain.LoginAttemptRecord
	expires map[string]time.Time
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{records: map[string]domain.LoginAttemptRecord{}, expires: map[string]time.Time{}}
}

func (a *memoryAttempts) RecordFailure(_ context.Context, identifier string, maxAttempts int, window time.Duration, at time.Time) (domain.LoginAttemptRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record := a.current(identifier, at)
	record.Identifier = identifier
	record.Attempts++
	record.LastAttemptAt = at
	if record.Attempts >= maxAttempts && record.LockoutExpiresAt == nil {
		until := at.Add(window)
		record.LockoutExpiresAt = &until
	}
	a.records[identifier] = record
	a.expires[identifier] = at.Add(window)
	return record, nil
}

func (a *memoryAttempts) Check(_ context.Context, identifier string, at time.Time) (domain.LoginAttemptRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record := a.current(identifier, at)
	if record.LockoutExpiresAt != nil && !at.Before(*record.LockoutExpiresAt) {
		delete(a.records, identifier)
		delete(a.expires, identifier)
		return domain.LoginAttemptRecord{Identifier: identifier}, nil
	}
	return record, nil
}

func (a *memoryAttempts) Reset(_ context.Context, identifier string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, identifier)
	delete(a.expires, identifier)
	return nil
}

// current must be called with mu held.
func (a *memoryAttempts) current(identifier string, at time.Time) domain.LoginAttemptRecord {
	if until, ok := a.expires[identifier]; ok && !at.Before(until) {
		delete(a.records, identifier)
		delete(a.expires, identifier)
	}
	return a.records[identifier]
}

type memoryRestrictions struct {
	mu     sync.Mutex
	flags  map[string]string
	failOn error
}

func newMemoryRestrictions() *memoryRestrictions {
	return &memoryRestrictions{flags: map[string]string{}}
}

func (r *memoryRestrictions) MarkRestricted(_ context.Context, userID, reason string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}
	r.flags[userID] = reason
	return nil
}

func (r *memoryRestrictions) IsRestricted(_ context.Context, userID string) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.flags[userID]
	return ok, reason, nil
}

func (r *memoryRestrictions) ClearRestriction(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, userID)
	return nil
}

type memoryRing struct {
	mu     sync.Mutex
	size   int
	events []domain.AuditEvent
}

func (r *memoryRing) Push(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append([]domain.AuditEvent{event}, r.events...)
	if r.size > 0 && len(r.events) > r.size {
		r.events = r.events[:r.size]
	}
	return nil
}

func (r *memoryRing) Recent(_ context.Context, limit int) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.events) {
		limit = len(r.events)
	}
	return append([]domain.AuditEvent(nil), r.events[:limit]...), nil
}

type memoryCounter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{hits: map[string][]time.Time{}}
}

func (c *memoryCounter) Hit(_ context.Context, identifier string, window time.Duration, at time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.hits[identifier][:0]
	for _, hit := range c.hits[identifier] {
		if at.Sub(hit) < window {
			kept = append(kept, hit)
		}
	}
	kept = append(kept, at)
	c.hits[identifier] = kept
	return len(kept), nil
}

// recordingPublisher captures every published message.
type recordingPublisher struct {
	mu              sync.Mutex
	audit           []domain.AuditEvent
	alerts          []domain.SecurityAlert
	passwordChanged []domain.PasswordChangedEvent
	revoked         []domain.SessionRevokedEvent
	resolved        []domain.PrivacyRequestResolvedEvent
	jobs            []domain.RetentionJob
}

func (p *recordingPublisher) PublishAuditEvent(_ context.Context, event domain.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audit = append(p.audit, event)
	return nil
}

func (p *recordingPublisher) PublishSecurityAlert(_ context.Context, alert domain.SecurityAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return nil
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwordChanged = append(p.passwordChanged, event)
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *recordingPublisher) PublishPrivacyRequestResolved(_ context.Context, event domain.PrivacyRequestResolvedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, event)
	return nil
}

func (p *recordingPublisher) PublishRetentionJob(_ context.Context, job domain.RetentionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) revokedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.revoked)
}

// recordingNotifier keeps the raw tokens handed out for delivery.
type recordingNotifier struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
	alerts        []domain.SecurityAlert
	updates       []domain.PrivacyRequest
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{verifications: map[string]string{}, resets: map[string]string{}}
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, user domain.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[user.Email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, user domain.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[user.Email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordChanged(context.Context, domain.User) error { return nil }

func (n *recordingNotifier) SendSecurityAlert(_ context.Context, alert domain.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) SendPrivacyRequestUpdate(_ context.Context, request domain.PrivacyRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, request)
	return nil
}
