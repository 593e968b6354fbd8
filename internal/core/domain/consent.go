package domain

import "time"

// ConsentType names a category of processing a user can agree to.
type ConsentType string

const (
	// ConsentProcessing is the baseline consent; withdrawing it restricts processing.
	ConsentProcessing ConsentType = "processing"
	ConsentMarketing  ConsentType = "marketing"
	ConsentAnalytics  ConsentType = "analytics"
	ConsentProfiling  ConsentType = "profiling"
)

// Valid reports whether the consent type is known.
func (t ConsentType) Valid() bool {
	switch t {
	case ConsentProcessing, ConsentMarketing, ConsentAnalytics, ConsentProfiling:
		return true
	}
	return false
}

// ConsentRecord is one row per (user, type). Withdrawal stamps WithdrawnAt instead of deleting.
type ConsentRecord struct {
	UserID        string
	Type          ConsentType
	Given         bool
	ConsentDate   time.Time
	PolicyVersion string
	WithdrawnAt   *time.Time
	Source        string
	IPAddress     *string
}

// FreshAt reports whether the grant is given and no older than validity at the supplied moment.
func (c ConsentRecord) FreshAt(at time.Time, validity time.Duration) bool {
	if !c.Given {
		return false
	}
	return at.Sub(c.ConsentDate) <= validity
}
