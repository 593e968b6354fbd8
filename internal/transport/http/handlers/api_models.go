package handlers

import (
	"time"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/domain"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest is the payload of the registration endpoint.
type RegisterRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Company          string `json:"company"`
	Phone            string `json:"phone"`
	Jurisdiction     string `json:"jurisdiction"`
	ConsentGiven     bool   `json:"consent_given"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// RegisterResponse is returned after a successful registration. VerificationToken
// is only populated in development mode.
type RegisterResponse struct {
	User              UserResponse `json:"user"`
	VerificationToken string       `json:"verification_token,omitempty"`
}

// LoginRequest is the payload of the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token and the session it is bound to.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	ExpiresAt   time.Time    `json:"expires_at"`
	SessionID   string       `json:"session_id"`
	User        UserResponse `json:"user"`
}

// VerifyEmailRequest consumes an email verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	SessionsRevoked int `json:"sessions_revoked"`
}

// UserResponse is the public view of a user. Profile fields are decrypted.
type UserResponse struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	Role          string            `json:"role"`
	Status        domain.UserStatus `json:"status"`
	FirstName     *string           `json:"first_name,omitempty"`
	LastName      *string           `json:"last_name,omitempty"`
	Company       *string           `json:"company,omitempty"`
	Phone         *string           `json:"phone,omitempty"`
	Jurisdiction  string            `json:"jurisdiction"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastLogin     *time.Time        `json:"last_login,omitempty"`
}

func newUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		Status:        u.Status,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Company:       u.Company,
		Phone:         u.Phone,
		Jurisdiction:  u.Jurisdiction,
		RegisteredAt:  u.RegisteredAt,
		LastLogin:     u.LastLogin,
	}
}

// PasswordChangeRequest is the payload of the authenticated password change endpoint.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordChangeResponse reports the outcome of a password change or reset.
type PasswordChangeResponse struct {
	ChangedAt       time.Time `json:"changed_at"`
	SessionsRevoked int       `json:"sessions_revoked"`
}

// PasswordResetRequest starts a reset. The response never reveals whether the email exists.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetResponse is identical for known and unknown addresses outside development mode.
type PasswordResetResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token,omitempty"`
	Expires *time.Time `json:"expires_at,omitempty"`
}

// PasswordResetConfirmRequest completes a reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ConsentRequest records or refreshes a consent grant.
type ConsentRequest struct {
	Type   domain.ConsentType `json:"type" binding:"required"`
	Given  bool               `json:"given"`
	Source string             `json:"source"`
}

// ConsentResponse is one consent record.
type ConsentResponse struct {
	Type          domain.ConsentType `json:"type"`
	Given         bool               `json:"given"`
	ConsentDate   time.Time          `json:"consent_date"`
	PolicyVersion string             `json:"policy_version"`
	WithdrawnAt   *time.Time         `json:"withdrawn_at,omitempty"`
	Source        string             `json:"source,omitempty"`
}

func newConsentResponse(r domain.ConsentRecord) ConsentResponse {
	return ConsentResponse{
		Type:          r.Type,
		Given:         r.Given,
		ConsentDate:   r.ConsentDate,
		PolicyVersion: r.PolicyVersion,
		WithdrawnAt:   r.WithdrawnAt,
		Source:        r.Source,
	}
}

// PrivacyRequestSubmission files a data-subject request.
type PrivacyRequestSubmission struct {
	Type    domain.PrivacyRequestType `json:"type" binding:"required"`
	Details map[string]any            `json:"details"`
}

// PrivacyRequestCreated is returned when a request is accepted.
type PrivacyRequestCreated struct {
	ID     string                      `json:"id"`
	Status domain.PrivacyRequestStatus `json:"status"`
}

// PrivacyRequestResponse is the status view of a data-subject request.
type PrivacyRequestResponse struct {
	ID           string                      `json:"id"`
	Type         domain.PrivacyRequestType   `json:"type"`
	Status       domain.PrivacyRequestStatus `json:"status"`
	SubmittedAt  time.Time                   `json:"submitted_at"`
	CompletedAt  *time.Time                  `json:"completed_at,omitempty"`
	ResponseData map[string]any              `json:"response_data,omitempty"`
	Reason       *string                     `json:"reason,omitempty"`
}

func newPrivacyRequestResponse(r domain.PrivacyRequest) PrivacyRequestResponse {
	return PrivacyRequestResponse{
		ID:           r.ID,
		Type:         r.Type,
		Status:       r.Status,
		SubmittedAt:  r.SubmittedAt,
		CompletedAt:  r.CompletedAt,
		ResponseData: r.ResponseData,
		Reason:       r.Reason,
	}
}

// InteractionRequest records a client-side interaction for the caller.
type InteractionRequest struct {
	Action   string         `json:"action" binding:"required"`
	Resource string         `json:"resource"`
	Metadata map[string]any `json:"metadata"`
}

// RetentionPolicyResponse is the public view of a retention policy.
type RetentionPolicyResponse struct {
	DataType               string                `json:"data_type"`
	RetentionDays          int                   `json:"retention_days"`
	AnonymizationDelayDays int                   `json:"anonymization_delay_days"`
	DeletionMethod         domain.DeletionMethod `json:"deletion_method"`
	LegalBasis             string                `json:"legal_basis"`
	Exceptions             []string              `json:"exceptions,omitempty"`
}

// RetentionJobResponse is the public view of a retention run.
type RetentionJobResponse struct {
	ID                string                    `json:"id"`
	DataType          string                    `json:"data_type"`
	Trigger           domain.RetentionTrigger   `json:"trigger"`
	Status            domain.RetentionJobStatus `json:"status"`
	StartedAt         *time.Time                `json:"started_at,omitempty"`
	CompletedAt       *time.Time                `json:"completed_at,omitempty"`
	RecordsProcessed  int                       `json:"records_processed"`
	RecordsDeleted    int                       `json:"records_deleted"`
	RecordsAnonymized int                       `json:"records_anonymized"`
	Errors            []string                  `json:"errors,omitempty"`
}

func newRetentionJobResponse(j domain.RetentionJob) RetentionJobResponse {
	return RetentionJobResponse{
		ID:                j.ID,
		DataType:          j.DataType,
		Trigger:           j.Trigger,
		Status:            j.Status,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
		RecordsProcessed:  j.RecordsProcessed,
		RecordsDeleted:    j.RecordsDeleted,
		RecordsAnonymized: j.RecordsAnonymized,
		Errors:            j.Errors,
	}
}

// RetentionStatusResponse pairs a policy with its backlog and latest run.
type RetentionStatusResponse struct {
	Policy  RetentionPolicyResponse `json:"policy"`
	Overdue int                     `json:"overdue_records"`
	LastJob *RetentionJobResponse   `json:"last_job,omitempty"`
}

func newRetentionStatusResponse(s usecase.PolicyStatus) RetentionStatusResponse {
	out := RetentionStatusResponse{
		Policy: RetentionPolicyResponse{
			DataType:               s.Policy.DataType,
			RetentionDays:          s.Policy.RetentionDays,
			AnonymizationDelayDays: s.Policy.AnonymizationDelayDays,
			DeletionMethod:         s.Policy.DeletionMethod,
			LegalBasis:             s.Policy.LegalBasis,
			Exceptions:             s.Policy.Exceptions,
		},
		Overdue: s.Overdue,
	}
	if s.LastJob != nil {
		job := newRetentionJobResponse(*s.LastJob)
		out.LastJob = &job
	}
	return out
}

// ReportRequest generates a compliance report. Start and End are required for custom reports.
type ReportRequest struct {
	Type  string     `json:"type" binding:"required"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// LegalHoldRequest places a legal hold on a user's data.
type LegalHoldRequest struct {
	Reason string     `json:"reason" binding:"required"`
	Until  *time.Time `json:"until"`
}

// LegalHoldResponse is the public view of a legal hold.
type LegalHoldResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Reason      string     `json:"reason"`
	ActiveFrom  time.Time  `json:"active_from"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
}

// AccountLockRequest locks or unlocks an account.
type AccountLockRequest struct {
	Locked bool `json:"locked"`
}

// AnonymizeRequest carries records to be anonymized for analytics export.
type AnonymizeRequest struct {
	Records []map[string]any `json:"records" binding:"required"`
}
