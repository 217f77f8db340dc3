// internal/activity/event.go
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Event is the payload published to a tenant's activity queue whenever one of
// their leads is created, updated, or deleted.
type Event struct {
	LeadID uuid.UUID `json:"lead_id"`
	UserID uuid.UUID `json:"user_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}
