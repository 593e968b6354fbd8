package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository"
)

const (
	defaultConsentValidity = 365 * 24 * time.Hour
	defaultRestrictionTTL  = 30 * 24 * time.Hour
	defaultPolicyVersion   = "1.0"

	restrictionReasonWithdrawn = "processing_consent_withdrawn"
	restrictionReasonRequested = "restriction_requested"
)

var (
	// ErrInvalidConsentType indicates an unknown consent category.
	ErrInvalidConsentType = domain.ValidationError("invalid_consent_type", "consent type is invalid", map[string]string{"type": "unknown consent type"})
	// ErrConsentNotFound indicates there is no record to withdraw.
	ErrConsentNotFound = domain.NewError(domain.KindNotFound, "consent_not_found", "consent record not found")
	// ErrProcessingRestricted is returned to data-processing routes while the restriction flag is set.
	ErrProcessingRestricted = domain.NewError(domain.KindAuthorization, "processing_restricted", "processing of personal data is restricted")
)

// ConsentInput captures a consent decision.
type ConsentInput struct {
	UserID    string
	Type      domain.ConsentType
	Given     bool
	Source    string
	IPAddress string
}

// ConsentService records consent decisions and maintains the processing-restriction flag.
type ConsentService struct {
	consents       port.ConsentRepository
	restrictions   port.RestrictionStore
	audit          port.AuditLogger
	logger         *zap.Logger
	validity       time.Duration
	policyVersion  string
	restrictionTTL time.Duration
	now            func() time.Time
}

// NewConsentService constructs a ConsentService.
func NewConsentService(consents port.ConsentRepository, restrictions port.RestrictionStore, audit port.AuditLogger, cfg config.ConsentSettings, logger *zap.Logger) *ConsentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	validity := cfg.ConsentValidity()
	if validity <= 0 {
		validity = defaultConsentValidity
	}
	version := strings.TrimSpace(cfg.PolicyVersion)
	if version == "" {
		version = defaultPolicyVersion
	}
	ttl := cfg.RestrictionTTL
	if ttl <= 0 {
		ttl = defaultRestrictionTTL
	}
	return &ConsentService{
		consents:       consents,
		restrictions:   restrictions,
		audit:          audit,
		logger:         logger,
		validity:       validity,
		policyVersion:  version,
		restrictionTTL: ttl,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ConsentService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// PolicyVersion is the version stamped on new consent records.
func (s *ConsentService) PolicyVersion() string {
	return s.policyVersion
}

// newRecord builds the record stored for a decision taken now.
func (s *ConsentService) newRecord(in ConsentInput) domain.ConsentRecord {
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "api"
	}
	return domain.ConsentRecord{
		UserID:        in.UserID,
		Type:          in.Type,
		Given:         in.Given,
		ConsentDate:   s.now(),
		PolicyVersion: s.policyVersion,
		Source:        source,
		IPAddress:     stringPtrOrNil(in.IPAddress),
	}
}

// RecordConsent upserts the decision, clearing any earlier withdrawal. Granting processing consent
// lifts a processing restriction; refusing it sets one.
func (s *ConsentService) RecordConsent(ctx context.Context, in ConsentInput) (domain.ConsentRecord, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return domain.ConsentRecord{}, domain.ValidationError("invalid_user", "user id is required", map[string]string{"user_id": "required"})
	}
	if !in.Type.Valid() {
		return domain.ConsentRecord{}, ErrInvalidConsentType
	}

	record := s.newRecord(in)
	if err := s.consents.Upsert(ctx, record); err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("upsert consent: %w", err)
	}

	if record.Type == domain.ConsentProcessing {
		if record.Given {
			if err := s.restrictions.ClearRestriction(ctx, record.UserID); err != nil {
				return domain.ConsentRecord{}, fmt.Errorf("clear processing restriction: %w", err)
			}
		} else if err := s.restrictions.MarkRestricted(ctx, record.UserID, restrictionReasonWithdrawn, s.restrictionTTL); err != nil {
			return domain.ConsentRecord{}, fmt.Errorf("mark processing restriction: %w", err)
		}
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:   domain.EventConsentRecorded,
		UserID: &record.UserID,
		Risk:   domain.RiskLow,
		Payload: map[string]any{
			"consent_type":   string(record.Type),
			"given":          record.Given,
			"policy_version": record.PolicyVersion,
		},
		IPAddress: record.IPAddress,
	})

	return record, nil
}

// WithdrawConsent turns the grant off and stamps the withdrawal date. Withdrawing processing consent
// restricts further processing for the configured period.
func (s *ConsentService) WithdrawConsent(ctx context.Context, userID string, consentType domain.ConsentType) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ValidationError("invalid_user", "user id is required", map[string]string{"user_id": "required"})
	}
	if !consentType.Valid() {
		return ErrInvalidConsentType
	}

	if err := s.consents.Withdraw(ctx, userID, consentType, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConsentNotFound
		}
		return fmt.Errorf("withdraw consent: %w", err)
	}

	if consentType == domain.ConsentProcessing {
		if err := s.restrictions.MarkRestricted(ctx, userID, restrictionReasonWithdrawn, s.restrictionTTL); err != nil {
			return fmt.Errorf("mark processing restriction: %w", err)
		}
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		Type:    domain.EventConsentWithdrawn,
		UserID:  &userID,
		Risk:    domain.RiskMedium,
		Payload: map[string]any{"consent_type": string(consentType)},
	})
	return nil
}

// ValidateConsent requires a given grant no older than the validity period. A missing record is
// not an error.
func (s *ConsentService) ValidateConsent(ctx context.Context, userID string, purpose domain.ConsentType) (bool, error) {
	record, err := s.consents.Get(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup consent: %w", err)
	}
	return record.FreshAt(s.now(), s.validity), nil
}

// ConsentStatus lists every consent record of the user.
func (s *ConsentService) ConsentStatus(ctx context.Context, userID string) ([]domain.ConsentRecord, error) {
	records, err := s.consents.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return records, nil
}

// ProcessingRestricted returns ErrProcessingRestricted while the user's restriction flag is set.
func (s *ConsentService) ProcessingRestricted(ctx context.Context, userID string) error {
	restricted, reason, err := s.restrictions.IsRestricted(ctx, userID)
	if err != nil {
		return fmt.Errorf("check processing restriction: %w", err)
	}
	if !restricted {
		return nil
	}
	return ErrProcessingRestricted.Wrap(errors.New(reason))
}

// Restrict sets the restriction flag on behalf of a restriction request.
func (s *ConsentService) Restrict(ctx context.Context, userID string) error {
	if err := s.restrictions.MarkRestricted(ctx, userID, restrictionReasonRequested, s.restrictionTTL); err != nil {
		return fmt.Errorf("mark processing restriction: %w", err)
	}
	return nil
}
