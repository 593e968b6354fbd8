package domain

import (
	"errors"
	"fmt"
	"time"
)

// PrivacyRequestType enumerates data-subject request kinds.
type PrivacyRequestType string

const (
	PrivacyRequestAccess        PrivacyRequestType = "access"
	PrivacyRequestRectification PrivacyRequestType = "rectification"
	PrivacyRequestErasure       PrivacyRequestType = "erasure"
	PrivacyRequestPortability   PrivacyRequestType = "portability"
	PrivacyRequestRestriction   PrivacyRequestType = "restriction"
	PrivacyRequestObjection     PrivacyRequestType = "objection"
)

// Valid reports whether the request type is known.
func (t PrivacyRequestType) Valid() bool {
	switch t {
	case PrivacyRequestAccess, PrivacyRequestRectification, PrivacyRequestErasure,
		PrivacyRequestPortability, PrivacyRequestRestriction, PrivacyRequestObjection:
		return true
	}
	return false
}

// PrivacyRequestStatus tracks a request through pending -> processing -> completed|rejected.
type PrivacyRequestStatus string

const (
	PrivacyStatusPending    PrivacyRequestStatus = "pending"
	PrivacyStatusProcessing PrivacyRequestStatus = "processing"
	PrivacyStatusCompleted  PrivacyRequestStatus = "completed"
	PrivacyStatusRejected   PrivacyRequestStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s PrivacyRequestStatus) Terminal() bool {
	return s == PrivacyStatusCompleted || s == PrivacyStatusRejected
}

// ErrInvalidTransition is returned when a state machine refuses a transition.
var ErrInvalidTransition = errors.New("invalid state transition")

// PrivacyRequest is a formal data-subject request tracked to completion.
type PrivacyRequest struct {
	ID           string
	UserID       string
	Type         PrivacyRequestType
	Status       PrivacyRequestStatus
	SubmittedAt  time.Time
	CompletedAt  *time.Time
	RequestData  map[string]any
	ResponseData map[string]any
	Reason       *string
}

// Transition moves the request to next, refusing to leave a terminal state.
func (r *PrivacyRequest) Transition(next PrivacyRequestStatus, at time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, r.ID, r.Status)
	}
	switch next {
	case PrivacyStatusProcessing:
		if r.Status != PrivacyStatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
		}
	case PrivacyStatusCompleted, PrivacyStatusRejected:
		completed := at
		r.CompletedAt = &completed
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// LegalHold blocks erasure of a user's data while active.
type LegalHold struct {
	ID          string
	UserID      string
	Reason      string
	ActiveFrom  time.Time
	ActiveUntil *time.Time
}

// ActiveAt reports whether the hold applies at the supplied moment.
func (h LegalHold) ActiveAt(at time.Time) bool {
	if at.Before(h.ActiveFrom) {
		return false
	}
	return h.ActiveUntil == nil || at.Before(*h.ActiveUntil)
}

// AssessmentResponse is a stored quiz/assessment answer set referencing a user.
type AssessmentResponse struct {
	ID          string         `json:"id"`
	UserID      *string        `json:"-"`
	Assessment  string         `json:"assessment"`
	Answers     map[string]any `json:"answers"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// DataExport is the payload produced by access and portability requests.
type DataExport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Profile     map[string]any       `json:"profile"`
	Sessions    SessionSummary       `json:"sessions"`
	Consents    []ConsentExport      `json:"consents"`
	Responses   []AssessmentResponse `json:"responses"`
}

// ConsentExport is the exported form of a consent record.
type ConsentExport struct {
	Type          ConsentType `json:"type"`
	Given         bool        `json:"given"`
	ConsentDate   time.Time   `json:"consent_date"`
	PolicyVersion string      `json:"policy_version"`
	WithdrawnAt   *time.Time  `json:"withdrawn_at,omitempty"`
}

// JurisdictionProfile describes the behaviours a region requires.
type JurisdictionProfile struct {
	Code               string
	Name               string
	ConsentRequired    bool
	ExplicitOptIn      bool
	MaxRetentionDays   int
	ErasureRight       bool
	PortabilityRight   bool
	ResponseDeadline   time.Duration
	BreachNotification time.Duration
}
