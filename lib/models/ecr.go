package models

import (
	"time"
)

// ECR represents an Engineering Change Request, the initial proposal for a change
type ECR struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	ECRNumber string `json:"ecr_number"`

	// Basic Information
	Title       string `json:"title"`
	Description string `json:"description"`
	Reason      string `json:"reason"`

	// Priority
	Urgency string `json:"urgency"`

	// Workflow
	Status string `json:"status"`

	// People
	SubmitterID   int64    `json:"submitter_id"`
	Submitter     *UserRef `json:"submitter,omitempty"`
	AssigneeID    *int64   `json:"assignee_id,omitempty"`
	Assignee      *UserRef `json:"assignee,omitempty"`
	ApproverID    *int64   `json:"approver_id,omitempty"`
	Approver      *UserRef `json:"approver,omitempty"`

	// Link to the ECO this ECR was bundled into, set exactly once
	ECOID *int64 `json:"eco_id,omitempty"`

	// Impact
	AffectedProducts   *string  `json:"affected_products,omitempty"`
	AffectedDocuments  *string  `json:"affected_documents,omitempty"`
	CostImpact         *float64 `json:"cost_impact,omitempty"`
	ScheduleImpactDays *int     `json:"schedule_impact_days,omitempty"`

	// Timeline
	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Attachments []ECRAttachment `json:"attachments,omitempty"`
}

// ECRAttachment represents a file attached to an ECR, stored in S3
type ECRAttachment struct {
	ID        int64     `json:"id"`
	ECRID     int64     `json:"ecr_id"`
	FileName  string    `json:"file_name"`
	FileType  *string   `json:"file_type,omitempty"`
	FileSize  *int64    `json:"file_size,omitempty"`
	S3Bucket  string    `json:"s3_bucket"`
	S3Key     string    `json:"s3_key"`
	UploadURL string    `json:"upload_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy int64     `json:"created_by"`
}

// CreateECRRequest represents the request payload for creating a new ECR
type CreateECRRequest struct {
	Title              string   `json:"title" binding:"required"`
	Description        string   `json:"description" binding:"required"`
	Reason             string   `json:"reason" binding:"required"`
	Urgency            string   `json:"urgency" binding:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	AssigneeID         *int64   `json:"assignee_id,omitempty"`
	AffectedProducts   *string  `json:"affected_products,omitempty"`
	AffectedDocuments  *string  `json:"affected_documents,omitempty"`
	CostImpact         *float64 `json:"cost_impact,omitempty"`
	ScheduleImpactDays *int     `json:"schedule_impact_days,omitempty"`
}

// UpdateECRRequest represents the request payload for updating ECR fields.
// Status is never updated through this path; status changes go through the
// dedicated transition endpoint.
type UpdateECRRequest struct {
	Title              string   `json:"title,omitempty"`
	Description        string   `json:"description,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	Urgency            string   `json:"urgency,omitempty" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	AssigneeID         *int64   `json:"assignee_id,omitempty"`
	AffectedProducts   *string  `json:"affected_products,omitempty"`
	AffectedDocuments  *string  `json:"affected_documents,omitempty"`
	CostImpact         *float64 `json:"cost_impact,omitempty"`
	ScheduleImpactDays *int     `json:"schedule_impact_days,omitempty"`
}

// CreateECRAttachmentRequest represents the request payload for registering an attachment
type CreateECRAttachmentRequest struct {
	FileName string  `json:"file_name" binding:"required"`
	FileType *string `json:"file_type,omitempty"`
	FileSize *int64  `json:"file_size,omitempty"`
}

// StatusChangeRequest represents a requested status transition for any entity type
type StatusChangeRequest struct {
	Status string  `json:"status" binding:"required"`
	Note   *string `json:"note,omitempty"`
}

// ECR Status constants
const (
	ECRStatusDraft     = "DRAFT"
	ECRStatusSubmitted = "SUBMITTED"
	ECRStatusApproved  = "APPROVED"
	ECRStatusRejected  = "REJECTED"
	ECRStatusConverted = "CONVERTED"
)

// Urgency constants, ordered LOW < MEDIUM < HIGH < CRITICAL
const (
	UrgencyLow      = "LOW"
	UrgencyMedium   = "MEDIUM"
	UrgencyHigh     = "HIGH"
	UrgencyCritical = "CRITICAL"
)

// Entity type constants used for numbering, revisions and traceability
const (
	EntityTypeECR = "ECR"
	EntityTypeECO = "ECO"
	EntityTypeECN = "ECN"
)

// Snapshot returns the field-level representation of the ECR used by the
// revision recorder. Keys are column-style field names.
func (e *ECR) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ecr_number":           e.ECRNumber,
		"title":                e.Title,
		"description":          e.Description,
		"reason":               e.Reason,
		"urgency":              e.Urgency,
		"status":               e.Status,
		"submitter_id":         e.SubmitterID,
		"assignee_id":          e.AssigneeID,
		"approver_id":          e.ApproverID,
		"eco_id":               e.ECOID,
		"affected_products":    e.AffectedProducts,
		"affected_documents":   e.AffectedDocuments,
		"cost_impact":          e.CostImpact,
		"schedule_impact_days": e.ScheduleImpactDays,
		"submitted_at":         e.SubmittedAt,
		"approved_at":          e.ApprovedAt,
	}
}
