package models

import (
	"encoding/json"
	"time"
)

// Revision is an immutable, append-only record of a single mutation to an
// ECR/ECO/ECN: full before/after snapshots plus the list of fields that
// actually changed. Revisions are written in the same transaction as the
// mutation they describe.
type Revision struct {
	ID            int64           `json:"id"`
	EntityType    string          `json:"entity_type"`
	EntityID      int64           `json:"entity_id"`
	ChangedAt     time.Time       `json:"changed_at"`
	ChangedBy     int64           `json:"changed_by"`
	ChangedByName string          `json:"changed_by_name,omitempty"`
	PreviousData  json.RawMessage `json:"previous_data,omitempty"`
	NewData       json.RawMessage `json:"new_data"`
	ChangedFields []string        `json:"changed_fields"`
	Note          *string         `json:"note,omitempty"`
}
