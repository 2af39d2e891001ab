package models

import (
	"time"
)

// ECN represents an Engineering Change Notice, the formal record that a change
// has been implemented. Exactly one ECN can exist per ECO, and its number
// carries the same year/sequence suffix as the originating ECO.
type ECN struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	ECNNumber string `json:"ecn_number"`
	ECOID     int64  `json:"eco_id"`

	// Basic Information
	Title       string `json:"title"`
	Description string `json:"description"`

	// Workflow
	Status string `json:"status"`

	// People
	SubmitterID int64    `json:"submitter_id"`
	Submitter   *UserRef `json:"submitter,omitempty"`
	AssigneeID  *int64   `json:"assignee_id,omitempty"`
	Assignee    *UserRef `json:"assignee,omitempty"`

	// Disposition
	Disposition  *string `json:"disposition,omitempty"`
	Verification *string `json:"verification,omitempty"`

	// Timeline
	CreatedAt     time.Time  `json:"created_at"`
	DistributedAt *time.Time `json:"distributed_at,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Acknowledgments []ECNAcknowledgment `json:"acknowledgments,omitempty"`
}

// ECNAcknowledgment tracks a per-stakeholder acknowledgment of a distributed ECN
type ECNAcknowledgment struct {
	ID             int64     `json:"id"`
	ECNID          int64     `json:"ecn_id"`
	UserID         int64     `json:"user_id"`
	UserName       string    `json:"user_name,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
	Note           *string   `json:"note,omitempty"`
}

// AcknowledgeECNRequest represents the request payload for acknowledging an ECN
type AcknowledgeECNRequest struct {
	Note *string `json:"note,omitempty"`
}

// ECN Status constants
const (
	ECNStatusPendingApproval = "PENDING_APPROVAL"
	ECNStatusDistributed     = "DISTRIBUTED"
	ECNStatusEffective       = "EFFECTIVE"
	ECNStatusCancelled       = "CANCELLED"
)

// Snapshot returns the field-level representation of the ECN used by the
// revision recorder
func (e *ECN) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ecn_number":     e.ECNNumber,
		"eco_id":         e.ECOID,
		"title":          e.Title,
		"description":    e.Description,
		"status":         e.Status,
		"submitter_id":   e.SubmitterID,
		"assignee_id":    e.AssigneeID,
		"disposition":    e.Disposition,
		"verification":   e.Verification,
		"distributed_at": e.DistributedAt,
		"effective_date": e.EffectiveDate,
	}
}
