// internal/model/lead.go
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Valid values for Lead.Source.
const (
	SourceWebsite     = "website"
	SourceFacebookAds = "facebook_ads"
	SourceGoogleAds   = "google_ads"
	SourceReferral    = "referral"
	SourceEvents      = "events"
	SourceOther       = "other"
)

// Valid values for Lead.Status.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusLost      = "lost"
	StatusWon       = "won"
)

var (
	sources  = map[string]bool{SourceWebsite: true, SourceFacebookAds: true, SourceGoogleAds: true, SourceReferral: true, SourceEvents: true, SourceOther: true}
	statuses = map[string]bool{StatusNew: true, StatusContacted: true, StatusQualified: true, StatusLost: true, StatusWon: true}

	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type Lead struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	Phone          string     `db:"phone" json:"phone,omitempty"`
	Company        string     `db:"company" json:"company,omitempty"`
	City           string     `db:"city" json:"city,omitempty"`
	State          string     `db:"state" json:"state,omitempty"`
	Source         string     `db:"source" json:"source"`
	Status         string     `db:"status" json:"status"`
	Score          int        `db:"score" json:"score"`
	LeadValue      float64    `db:"lead_value" json:"lead_value"`
	IsQualified    bool       `db:"is_qualified" json:"is_qualified"`
	LastActivityAt *time.Time `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks field-level constraints before a lead reaches the store.
func (l *Lead) Validate() error {
	if strings.TrimSpace(l.FirstName) == "" {
		return fmt.Errorf("first_name is required")
	}
	if strings.TrimSpace(l.LastName) == "" {
		return fmt.Errorf("last_name is required")
	}
	if !emailRe.MatchString(l.Email) {
		return fmt.Errorf("invalid email: %q", l.Email)
	}
	if !sources[l.Source] {
		return fmt.Errorf("invalid source: %q", l.Source)
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	if !statuses[l.Status] {
		return fmt.Errorf("invalid status: %q", l.Status)
	}
	if l.Score < 0 || l.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100")
	}
	if l.LeadValue < 0 {
		return fmt.Errorf("lead_value must not be negative")
	}
	return nil
}
