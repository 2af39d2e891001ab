package models

import (
	"time"
)

// User represents a user account scoped to an organization
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	OrgID     int64     `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRef is a lightweight user reference used inside entity responses
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User role constants
const (
	RoleAdmin           = "ADMIN"
	RoleManager         = "MANAGER"
	RoleEngineer        = "ENGINEER"
	RoleQuality         = "QUALITY"
	RoleManufacturing   = "MANUFACTURING"
	RoleRequestor       = "REQUESTOR"
	RoleDocumentControl = "DOCUMENT_CONTROL"
	RoleViewer          = "VIEWER"
)
