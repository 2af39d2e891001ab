package models

import (
	"time"
)

// Organization represents a tenant in the system. Every other entity carries
// an org_id that must match the acting user's organization.
type Organization struct {
	OrgID     int64     `json:"org_id"`
	OrgName   string    `json:"org_name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
