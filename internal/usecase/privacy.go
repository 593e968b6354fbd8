package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultProcessingTimeout = 2 * time.Minute

	rejectLegalHold      = "legal_hold_active"
	rejectErasureFailed  = "erasure_failed"
	rejectExportFailed   = "export_failed"
	rejectInvalidFields  = "invalid_fields"
	rejectRestrictFailed = "restriction_failed"
	rejectObjectFailed   = "objection_failed"
)

var (
	// ErrPrivacyRequestNotFound indicates the request id is unknown or belongs to another user.
	ErrPrivacyRequestNotFound = domain.NewError(domain.KindNotFound, "privacy_request_not_found", "privacy request not found")
	// ErrPrivacyRequestClosed indicates the request already left the pending state.
	ErrPrivacyRequestClosed = domain.NewError(domain.KindConflict, "privacy_request_closed", "privacy request is no longer pending")
	// ErrInvalidPrivacyRequest indicates an unknown request type.
	ErrInvalidPrivacyRequest = domain.ValidationError("invalid_privacy_request", "privacy request type is invalid", map[string]string{"type": "unknown request type"})
	// ErrRightNotAvailable indicates the user's jurisdiction grants no such right.
	ErrRightNotAvailable = domain.ValidationError("right_not_available", "request type is not available in this jurisdiction", map[string]string{"type": "not available"})
	// ErrLegalHoldActive is returned when an erasure is rejected because of a legal hold.
	ErrLegalHoldActive = domain.NewError(domain.KindConflict, "legal_hold_active", "erasure is blocked by a legal obligation")
	// ErrPrivacyServiceClosed is returned after Shutdown.
	ErrPrivacyServiceClosed = domain.NewError(domain.KindUnavailable, "privacy_service_closed", "privacy service is shutting down")
)

// rectifiableFields are the profile columns a rectification request may change.
var rectifiableFields = map[string]struct{}{
	"first_name": {},
	"last_name":  {},
	"company":    {},
	"phone":      {},
}

// PrivacyDeps groups the collaborators of PrivacyService.
type PrivacyDeps struct {
	Requests  port.PrivacyRequestRepository
	Holds     port.LegalHoldRepository
	Users     port.UserRepository
	Mirror    port.SessionRepository
	Responses port.ResponseRepository
	Tx        port.Transactor
	Cipher    port.FieldCipher
	Sessions  *SessionService
	Consents  *ConsentService
	Events    port.EventPublisher
	Notifier  port.Notifier
	Audit     port.AuditLogger
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

// PrivacyService accepts and fulfils data-subject requests. Access, portability, restriction and
// objection requests are processed in the background; erasure and rectification wait for an operator.
type PrivacyService struct {
	requests  port.PrivacyRequestRepository
	holds     port.LegalHoldRepository
	users     port.UserRepository
	mirror    port.SessionRepository
	responses port.ResponseRepository
	tx        port.Transactor
	cipher    port.FieldCipher
	sessions  *SessionService
	consents  *ConsentService
	events    port.EventPublisher
	notifier  port.Notifier
	audit     port.AuditLogger
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	timeout   time.Duration

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	now func() time.Time
}

// NewPrivacyService constructs a PrivacyService.
func NewPrivacyService(deps PrivacyDeps, cfg config.PrivacySettings) *PrivacyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	base, cancel := context.WithCancel(context.Background())

	return &PrivacyService{
		requests:  deps.Requests,
		holds:     deps.Holds,
		users:     deps.Users,
		mirror:    deps.Mirror,
		responses: deps.Responses,
		tx:        deps.Tx,
		cipher:    deps.Cipher,
		sessions:  deps.Sessions,
		consents:  deps.Consents,
		events:    deps.Events,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    logger,
		timeout:   timeout,
		baseCtx:   base,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *PrivacyService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// PrivacyRequestInput is a data-subject request as submitted.
type PrivacyRequestInput struct {
	UserID  string
	Type    domain.PrivacyRequestType
	Details map[string]any
	IP      string
}

// HandlePrivacyRequest stores a pending request and schedules automatic fulfilment where allowed.
func (s *PrivacyService) HandlePrivacyRequest(ctx context.Context, in PrivacyRequestInput) (string, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return "", domain.ErrNotAuthenticated
	}
	if !in.Type.Valid() {
		return "", ErrInvalidPrivacyRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	profile := RegionalCompliance(user.Jurisdiction)
	if (in.Type == domain.PrivacyRequestErasure && !profile.ErasureRight) ||
		(in.Type == domain.PrivacyRequestPortability && !profile.PortabilityRight) {
		return "", ErrRightNotAvailable
	}

	request := domain.PrivacyRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        in.Type,
		Status:      domain.PrivacyStatusPending,
		SubmittedAt: s.now(),
		RequestData: in.Details,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return "", fmt.Errorf("store privacy request: %w", err)
	}

	s.metrics.ObservePrivacyRequest(string(request.Type), string(request.Status))
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:   domain.EventPrivacyRequested,
		UserID: &userID,
		Risk:   domain.RiskMedium,
		Payload: map[string]any{
			"request_id":   request.ID,
			"request_type": string(request.Type),
			"deadline":     request.SubmittedAt.Add(profile.ResponseDeadline).Format(time.RFC3339),
		},
		IPAddress: stringPtrOrNil(in.IP),
	})

	switch request.Type {
	case domain.PrivacyRequestAccess, domain.PrivacyRequestPortability,
		domain.PrivacyRequestRestriction, domain.PrivacyRequestObjection:
		s.dispatch(request.ID)
	}

	return request.ID, nil
}

// dispatch processes a request on a goroutine bound to the service lifecycle.
func (s *PrivacyService) dispatch(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("privacy service closed, request left pending", zap.String("request_id", id))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
		defer cancel()

		if _, err := s.ProcessRequest(ctx, id); err != nil {
			s.logger.Warn("privacy request processing failed", zap.String("request_id", id), zap.Error(err))
		}
	}()
}

// Shutdown stops accepting background work and waits for in-flight requests. When ctx expires first the
// running requests are cancelled.
func (s *PrivacyService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// ProcessRequest runs the processor matching the request type.
func (s *PrivacyService) ProcessRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Type {
	case domain.PrivacyRequestAccess, domain.PrivacyRequestPortability:
		return s.ProcessDataAccessRequest(ctx, id)
	case domain.PrivacyRequestErasure:
		return s.ProcessDataErasureRequest(ctx, id)
	case domain.PrivacyRequestRestriction:
		return s.ProcessRestrictionRequest(ctx, id)
	case domain.PrivacyRequestRectification:
		return s.ProcessRectificationRequest(ctx, id)
	case domain.PrivacyRequestObjection:
		return s.ProcessObjectionRequest(ctx, id)
	default:
		return nil, ErrInvalidPrivacyRequest
	}
}

// ProcessDataAccessRequest assembles every record referencing the user into an export. Any failure
// rejects the request.
func (s *PrivacyService) ProcessDataAccessRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	export, err := s.buildExport(ctx, request.UserID)
	if err != nil {
		return s.reject(ctx, request, rejectExportFailed, fmt.Errorf("build export: %w", err))
	}

	request.ResponseData = map[string]any{"format": "json", "export": export}
	return s.complete(ctx, request)
}

func (s *PrivacyService) buildExport(ctx context.Context, userID string) (domain.DataExport, error) {
	now := s.now()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("load user: %w", err)
	}
	phone, err := decryptField(s.cipher, user.Phone)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("decrypt phone: %w", err)
	}

	profile := map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"role":           user.Role,
		"status":         string(user.Status),
		"jurisdiction":   user.Jurisdiction,
		"registered_at":  user.RegisteredAt,
		"first_name":     derefOrEmpty(user.FirstName),
		"last_name":      derefOrEmpty(user.LastName),
		"company":        derefOrEmpty(user.Company),
		"phone":          derefOrEmpty(phone),
	}
	if user.LastLogin != nil {
		profile["last_login"] = *user.LastLogin
	}

	summary, err := s.mirror.Summary(ctx, userID, now)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("summarize sessions: %w", err)
	}

	records, err := s.consents.ConsentStatus(ctx, userID)
	if err != nil {
		return domain.DataExport{}, err
	}
	consents := make([]domain.ConsentExport, 0, len(records))
	for _, r := range records {
		consents = append(consents, domain.ConsentExport{
			Type:          r.Type,
			Given:         r.Given,
			ConsentDate:   r.ConsentDate,
			PolicyVersion: r.PolicyVersion,
			WithdrawnAt:   r.WithdrawnAt,
		})
	}

	responses, err := s.responses.ListByUser(ctx, userID)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("list responses: %w", err)
	}

	return domain.DataExport{
		GeneratedAt: now,
		Profile:     profile,
		Sessions:    summary,
		Consents:    consents,
		Responses:   responses,
	}, nil
}

// ProcessDataErasureRequest removes every record referencing the user unless a legal hold is active.
// The deletion, the request completion and the cache revocation succeed or fail together.
func (s *PrivacyService) ProcessDataErasureRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	holds, err := s.holds.ListActive(ctx, request.UserID, s.now())
	if err != nil {
		return s.reject(ctx, request, rejectErasureFailed, fmt.Errorf("check legal holds: %w", err))
	}
	if len(holds) > 0 {
		rejected, rejectErr := s.reject(ctx, request, rejectLegalHold, nil)
		if rejectErr != nil {
			return rejected, rejectErr
		}
		return rejected, ErrLegalHoldActive
	}

	var (
		completed  domain.PrivacyRequest
		revokedIDs []string
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		summary, err := tx.Erasure().EraseUser(ctx, request.UserID)
		if err != nil {
			return fmt.Errorf("erase user: %w", err)
		}

		completed = *request
		completed.ResponseData = map[string]any{"erased": summary}
		if err := completed.Transition(domain.PrivacyStatusCompleted, s.now()); err != nil {
			return err
		}
		if err := tx.PrivacyRequests().Update(ctx, completed); err != nil {
			return fmt.Errorf("complete privacy request: %w", err)
		}

		ids, err := s.sessions.cache.DeleteAllForUser(ctx, request.UserID)
		if err != nil {
			return fmt.Errorf("revoke cached sessions: %w", err)
		}
		revokedIDs = ids
		return nil
	})
	if err != nil {
		return s.reject(ctx, request, rejectErasureFailed, err)
	}

	s.sessions.announceRevocations(ctx, request.UserID, revokedIDs, RevokeReasonErasure)
	s.resolved(ctx, completed)
	return &completed, nil
}

// ProcessRestrictionRequest sets the processing-restriction flag for the user.
func (s *PrivacyService) ProcessRestrictionRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.consents.Restrict(ctx, request.UserID); err != nil {
		return s.reject(ctx, request, rejectRestrictFailed, err)
	}
	request.ResponseData = map[string]any{"restricted": true}
	return s.complete(ctx, request)
}

// ProcessRectificationRequest applies the whitelisted profile changes in RequestData["fields"].
func (s *PrivacyService) ProcessRectificationRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	fields, err := s.rectificationFields(request.RequestData)
	if err != nil {
		return s.reject(ctx, request, rejectInvalidFields, err)
	}

	var completed domain.PrivacyRequest
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx port.TxScope) error {
		if err := tx.Users().UpdateProfile(ctx, request.UserID, fields); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		completed = *request
		changed := make([]string, 0, len(fields))
		for name := range fields {
			changed = append(changed, name)
		}
		completed.ResponseData = map[string]any{"updated_fields": changed}
		if err := completed.Transition(domain.PrivacyStatusCompleted, s.now()); err != nil {
			return err
		}
		return tx.PrivacyRequests().Update(ctx, completed)
	})
	if err != nil {
		return s.reject(ctx, request, rejectInvalidFields, err)
	}

	s.resolved(ctx, completed)
	return &completed, nil
}

func (s *PrivacyService) rectificationFields(data map[string]any) (map[string]*string, error) {
	raw, ok := data["fields"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("no fields to rectify")
	}

	fields := make(map[string]*string, len(raw))
	for name, value := range raw {
		if _, allowed := rectifiableFields[name]; !allowed {
			return nil, fmt.Errorf("field %q cannot be rectified", name)
		}
		if value == nil {
			fields[name] = nil
			continue
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field %q must be a string", name)
		}
		cleaned := security.SanitizeInput(text)
		if name == "phone" {
			sealed, err := encryptField(s.cipher, cleaned)
			if err != nil {
				return nil, err
			}
			fields[name] = sealed
			continue
		}
		fields[name] = stringPtrOrNil(cleaned)
	}
	return fields, nil
}

// ProcessObjectionRequest withdraws the marketing and profiling consents.
func (s *PrivacyService) ProcessObjectionRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	withdrawn := make([]string, 0, 2)
	for _, t := range []domain.ConsentType{domain.ConsentMarketing, domain.ConsentProfiling} {
		err := s.consents.WithdrawConsent(ctx, request.UserID, t)
		switch {
		case err == nil:
			withdrawn = append(withdrawn, string(t))
		case errors.Is(err, ErrConsentNotFound):
		default:
			return s.reject(ctx, request, rejectObjectFailed, err)
		}
	}

	request.ResponseData = map[string]any{"withdrawn": withdrawn}
	return s.complete(ctx, request)
}

// RequestStatus returns the user's own request. Requests of other users are reported as not found.
func (s *PrivacyService) RequestStatus(ctx context.Context, id, userID string) (*domain.PrivacyRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, ErrPrivacyRequestNotFound
	}
	return request, nil
}

// GetRequest returns any request for operators.
func (s *PrivacyService) GetRequest(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	return s.load(ctx, id)
}

// PlaceLegalHold blocks erasure for the user until the hold expires.
func (s *PrivacyService) PlaceLegalHold(ctx context.Context, userID, reason string, until *time.Time) (domain.LegalHold, error) {
	userID = strings.TrimSpace(userID)
	reason = security.SanitizeInput(reason)
	if userID == "" || reason == "" {
		return domain.LegalHold{}, domain.ValidationError("invalid_legal_hold", "user id and reason are required", map[string]string{"user_id": "required", "reason": "required"})
	}

	hold := domain.LegalHold{
		ID:          uuid.NewString(),
		UserID:      userID,
		Reason:      reason,
		ActiveFrom:  s.now(),
		ActiveUntil: until,
	}
	if err := s.holds.Create(ctx, hold); err != nil {
		return domain.LegalHold{}, fmt.Errorf("store legal hold: %w", err)
	}
	return hold, nil
}

func (s *PrivacyService) load(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrPrivacyRequestNotFound
	}
	request, err := s.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrivacyRequestNotFound
		}
		return nil, fmt.Errorf("load privacy request: %w", err)
	}
	return request, nil
}

// begin moves a pending request to processing.
func (s *PrivacyService) begin(ctx context.Context, id string) (*domain.PrivacyRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := request.Transition(domain.PrivacyStatusProcessing, s.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, ErrPrivacyRequestClosed
		}
		return nil, err
	}
	if err := s.requests.Update(ctx, *request); err != nil {
		return nil, fmt.Errorf("mark privacy request processing: %w", err)
	}
	return request, nil
}

func (s *PrivacyService) complete(ctx context.Context, request *domain.PrivacyRequest) (*domain.PrivacyRequest, error) {
	if err := request.Transition(domain.PrivacyStatusCompleted, s.now()); err != nil {
		return nil, err
	}
	if err := s.requests.Update(ctx, *request); err != nil {
		return s.reject(ctx, request, rejectExportFailed, fmt.Errorf("complete privacy request: %w", err))
	}
	s.resolved(ctx, *request)
	return request, nil
}

// reject records a terminal rejection. It survives a cancelled ctx so timeouts never leave a
// request in processing.
func (s *PrivacyService) reject(ctx context.Context, request *domain.PrivacyRequest, reason string, cause error) (*domain.PrivacyRequest, error) {
	ctx = context.WithoutCancel(ctx)

	// The copy may already read completed when the completion write itself failed.
	rejected := *request
	rejected.Status = domain.PrivacyStatusProcessing
	rejected.ResponseData = nil
	if err := rejected.Transition(domain.PrivacyStatusRejected, s.now()); err != nil {
		return nil, errors.Join(cause, err)
	}
	rejected.Reason = &reason

	if err := s.requests.Update(ctx, rejected); err != nil {
		return nil, errors.Join(cause, fmt.Errorf("reject privacy request: %w", err))
	}
	if cause != nil {
		s.logger.Warn("privacy request rejected",
			zap.String("request_id", rejected.ID),
			zap.String("reason", reason),
			zap.Error(cause),
		)
	}

	s.resolved(ctx, rejected)
	return &rejected, cause
}

func (s *PrivacyService) resolved(ctx context.Context, request domain.PrivacyRequest) {
	s.metrics.ObservePrivacyRequest(string(request.Type), string(request.Status))

	resolvedAt := s.now()
	if request.CompletedAt != nil {
		resolvedAt = *request.CompletedAt
	}

	if s.events != nil {
		event := domain.PrivacyRequestResolvedEvent{
			EventID:    uuid.NewString(),
			RequestID:  request.ID,
			UserID:     request.UserID,
			Type:       request.Type,
			Status:     request.Status,
			ResolvedAt: resolvedAt,
			Reason:     request.Reason,
		}
		if err := s.events.PublishPrivacyRequestResolved(ctx, event); err != nil {
			s.logger.Warn("failed to publish privacy request resolution", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendPrivacyRequestUpdate(ctx, request); err != nil {
			s.logger.Warn("failed to notify privacy request update", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	eventType := domain.EventPrivacyCompleted
	risk := domain.RiskMedium
	if request.Status == domain.PrivacyStatusRejected {
		eventType = domain.EventPrivacyRejected
	}
	if request.Type == domain.PrivacyRequestErasure && request.Status == domain.PrivacyStatusCompleted {
		risk = domain.RiskHigh
	}

	payload := map[string]any{
		"request_id":   request.ID,
		"request_type": string(request.Type),
		"status":       string(request.Status),
	}
	if request.Reason != nil {
		payload["reason"] = *request.Reason
	}

	event := domain.AuditEvent{Type: eventType, Risk: risk, Payload: payload}
	if request.Type != domain.PrivacyRequestErasure || request.Status != domain.PrivacyStatusCompleted {
		event.UserID = stringPtrOrNil(request.UserID)
	}
	recordAudit(ctx, s.audit, s.logger, event)
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
