package models

import (
	"time"
)

// ECO represents an Engineering Change Order, an approved and resourced plan
// implementing one or more bundled ECRs. ECOs are only ever created by the
// bundling engine, never directly.
type ECO struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	ECONumber string `json:"eco_number"`

	// Basic Information
	Title       string `json:"title"`
	Description string `json:"description"`

	// Workflow
	Status string `json:"status"`

	// Derived from the bundled ECRs: highest urgency wins
	Priority   string     `json:"priority"`
	TargetDate *time.Time `json:"target_date,omitempty"`

	// People
	SubmitterID int64    `json:"submitter_id"`
	Submitter   *UserRef `json:"submitter,omitempty"`
	AssigneeID  *int64   `json:"assignee_id,omitempty"`
	Assignee    *UserRef `json:"assignee,omitempty"`
	ApproverID  *int64   `json:"approver_id,omitempty"`
	Approver    *UserRef `json:"approver,omitempty"`

	// Plans
	ImplementationPlan *string `json:"implementation_plan,omitempty"`
	TestingPlan        *string `json:"testing_plan,omitempty"`
	RollbackPlan       *string `json:"rollback_plan,omitempty"`

	// Timeline
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// The ECRs bundled into this ECO
	ECRIDs []int64 `json:"ecr_ids,omitempty"`
}

// BundleECRsRequest represents the request payload for bundling approved ECRs into a new ECO
type BundleECRsRequest struct {
	ECRIDs      []int64 `json:"ecr_ids" binding:"required,min=2"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
}

// BundleECRsResponse carries the created ECO and the converted ECRs
type BundleECRsResponse struct {
	ECO         *ECO  `json:"eco"`
	UpdatedECRs []ECR `json:"updated_ecrs"`
}

// UpdateECORequest represents the request payload for updating ECO plan fields
type UpdateECORequest struct {
	Title              string  `json:"title,omitempty"`
	Description        string  `json:"description,omitempty"`
	AssigneeID         *int64  `json:"assignee_id,omitempty"`
	ImplementationPlan *string `json:"implementation_plan,omitempty"`
	TestingPlan        *string `json:"testing_plan,omitempty"`
	RollbackPlan       *string `json:"rollback_plan,omitempty"`
}

// ECO Status constants
const (
	ECOStatusBacklog    = "BACKLOG"
	ECOStatusInProgress = "IN_PROGRESS"
	ECOStatusCompleted  = "COMPLETED"
	ECOStatusCancelled  = "CANCELLED"
)

// SLA days to the target date, keyed by derived priority
var PrioritySLADays = map[string]int{
	UrgencyCritical: 14,
	UrgencyHigh:     30,
	UrgencyMedium:   60,
	UrgencyLow:      90,
}

// Snapshot returns the field-level representation of the ECO used by the
// revision recorder
func (e *ECO) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"eco_number":          e.ECONumber,
		"title":               e.Title,
		"description":         e.Description,
		"status":              e.Status,
		"priority":            e.Priority,
		"target_date":         e.TargetDate,
		"submitter_id":        e.SubmitterID,
		"assignee_id":         e.AssigneeID,
		"approver_id":         e.ApproverID,
		"implementation_plan": e.ImplementationPlan,
		"testing_plan":        e.TestingPlan,
		"rollback_plan":       e.RollbackPlan,
		"completed_at":        e.CompletedAt,
	}
}
