package workflow

import (
	"time"

	"changecontrol/lib/models"
)

// transitionKey identifies one edge in an entity's status graph
type transitionKey struct {
	entityType string
	from       string
	to         string
}

// transitions is the complete table of legal status changes. Anything absent
// from this table fails with InvalidTransitionError and leaves the record
// unchanged.
var transitions = map[transitionKey]bool{
	// ECR
	{models.EntityTypeECR, models.ECRStatusDraft, models.ECRStatusSubmitted}:     true,
	{models.EntityTypeECR, models.ECRStatusDraft, models.ECRStatusApproved}:      true,
	{models.EntityTypeECR, models.ECRStatusDraft, models.ECRStatusRejected}:      true,
	{models.EntityTypeECR, models.ECRStatusSubmitted, models.ECRStatusApproved}:  true,
	{models.EntityTypeECR, models.ECRStatusSubmitted, models.ECRStatusRejected}:  true,
	{models.EntityTypeECR, models.ECRStatusApproved, models.ECRStatusConverted}:  true,

	// ECO
	{models.EntityTypeECO, models.ECOStatusBacklog, models.ECOStatusInProgress}:   true,
	{models.EntityTypeECO, models.ECOStatusBacklog, models.ECOStatusCancelled}:    true,
	{models.EntityTypeECO, models.ECOStatusInProgress, models.ECOStatusCompleted}: true,
	{models.EntityTypeECO, models.ECOStatusInProgress, models.ECOStatusCancelled}: true,

	// ECN
	{models.EntityTypeECN, models.ECNStatusPendingApproval, models.ECNStatusDistributed}: true,
	{models.EntityTypeECN, models.ECNStatusPendingApproval, models.ECNStatusCancelled}:   true,
	{models.EntityTypeECN, models.ECNStatusDistributed, models.ECNStatusEffective}:       true,
	{models.EntityTypeECN, models.ECNStatusDistributed, models.ECNStatusCancelled}:       true,
}

// engineOnly marks edges the bundling/promotion engine walks on the caller's
// behalf. They are never reachable through a direct status-change request.
var engineOnly = map[transitionKey]bool{
	{models.EntityTypeECR, models.ECRStatusApproved, models.ECRStatusConverted}: true,
}

// CanTransition reports whether the edge exists at all, including engine-only edges
func CanTransition(entityType, from, to string) bool {
	return transitions[transitionKey{entityType, from, to}]
}

// ValidateUserTransition checks a caller-requested status change. Engine-only
// edges (ECR APPROVED -> CONVERTED) are rejected here even though they exist
// in the table; only bundling may walk them.
func ValidateUserTransition(entityType, from, to string) error {
	key := transitionKey{entityType, from, to}
	if !transitions[key] || engineOnly[key] {
		return &InvalidTransitionError{EntityType: entityType, From: from, To: to}
	}
	return nil
}

// TimestampColumns returns the timestamp columns stamped when an entity enters
// the given status
func TimestampColumns(entityType, to string, now time.Time) map[string]time.Time {
	stamps := map[string]time.Time{}

	switch entityType {
	case models.EntityTypeECR:
		switch to {
		case models.ECRStatusSubmitted:
			stamps["submitted_at"] = now
		case models.ECRStatusApproved:
			stamps["approved_at"] = now
		}
	case models.EntityTypeECO:
		if to == models.ECOStatusCompleted {
			stamps["completed_at"] = now
		}
	case models.EntityTypeECN:
		switch to {
		case models.ECNStatusDistributed:
			stamps["distributed_at"] = now
		case models.ECNStatusEffective:
			stamps["effective_date"] = now
		}
	}

	return stamps
}

// DerivePriority returns the highest urgency among the bundled ECRs,
// using the ordering LOW < MEDIUM < HIGH < CRITICAL
func DerivePriority(urgencies []string) string {
	rank := map[string]int{
		models.UrgencyLow:      0,
		models.UrgencyMedium:   1,
		models.UrgencyHigh:     2,
		models.UrgencyCritical: 3,
	}

	priority := models.UrgencyLow
	for _, u := range urgencies {
		if rank[u] > rank[priority] {
			priority = u
		}
	}
	return priority
}

// DeriveTargetDate returns now plus the SLA window for the derived priority
func DeriveTargetDate(priority string, now time.Time) time.Time {
	days, ok := models.PrioritySLADays[priority]
	if !ok {
		days = models.PrioritySLADays[models.UrgencyLow]
	}
	return now.AddDate(0, 0, days)
}
