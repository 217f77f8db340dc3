// internal/model/activity.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Activity kinds recorded for a lead.
const (
	ActivityCreated = "created"
	ActivityUpdated = "updated"
	ActivityDeleted = "deleted"
)

type Activity struct {
	ID        uuid.UUID `db:"id" json:"id"`
	LeadID    uuid.UUID `db:"lead_id" json:"lead_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	At        time.Time `db:"at" json:"at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
