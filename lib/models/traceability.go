package models

import (
	"time"
)

// ChainLink is a compact reference to a linked entity inside a traceability chain
type ChainLink struct {
	ID         int64  `json:"id"`
	EntityType string `json:"entity_type"`
	Number     string `json:"number"`
	Title      string `json:"title"`
	Status     string `json:"status"`
}

// ChainNode is one entity of a traceability chain with its lineage expanded.
// ECR and ECO nodes carry their downstream links, ECN nodes their upstream ones.
type ChainNode struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	Number     string    `json:"number"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Submitter  *UserRef  `json:"submitter,omitempty"`

	ChildECO   *ChainLink  `json:"child_eco,omitempty"`
	ChildECNs  []ChainLink `json:"child_ecns,omitempty"`
	ParentECO  *ChainLink  `json:"parent_eco,omitempty"`
	LinkedECRs []ChainLink `json:"linked_ecrs,omitempty"`
}

// TraceabilityResult is the response payload for a traceability search
type TraceabilityResult struct {
	Query        string      `json:"query"`
	TotalResults int         `json:"total_results"`
	Chains       []ChainNode `json:"chains"`
}
