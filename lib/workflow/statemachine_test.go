package workflow

import (
	"testing"
	"time"

	"changecontrol/lib/models"

	"github.com/stretchr/testify/assert"
)

func Test_ValidateUserTransition_AllowedEdges(t *testing.T) {
	//Arrange
	allowed := []struct {
		entityType string
		from       string
		to         string
	}{
		{models.EntityTypeECR, models.ECRStatusDraft, models.ECRStatusSubmitted},
		{models.EntityTypeECR, models.ECRStatusDraft, models.ECRStatusApproved},
		{models.EntityTypeECR, models.ECRStatusSubmitted, models.ECRStatusApproved},
		{models.EntityTypeECR, models.ECRStatusSubmitted, models.ECRStatusRejected},
		{models.EntityTypeECO, models.ECOStatusBacklog, models.ECOStatusInProgress},
		{models.EntityTypeECO, models.ECOStatusInProgress, models.ECOStatusCompleted},
		{models.EntityTypeECO, models.ECOStatusInProgress, models.ECOStatusCancelled},
		{models.EntityTypeECN, models.ECNStatusPendingApproval, models.ECNStatusDistributed},
		{models.EntityTypeECN, models.ECNStatusDistributed, models.ECNStatusEffective},
		{models.EntityTypeECN, models.ECNStatusDistributed, models.ECNStatusCancelled},
	}

	for _, edge := range allowed {
		//Act
		err := ValidateUserTransition(edge.entityType, edge.from, edge.to)

		//Assert
		assert.NoError(t, err, "%s %s -> %s should be allowed", edge.entityType, edge.from, edge.to)
	}
}

func Test_ValidateUserTransition_RejectedEdges(t *testing.T) {
	//Arrange
	rejected := []struct {
		entityType string
		from       string
		to         string
	}{
		{models.EntityTypeECR, models.ECRStatusRejected, models.ECRStatusSubmitted},
		{models.EntityTypeECR, models.ECRStatusConverted, models.ECRStatusDraft},
		{models.EntityTypeECR, models.ECRStatusApproved, models.ECRStatusDraft},
		{models.EntityTypeECO, models.ECOStatusCompleted, models.ECOStatusInProgress},
		{models.EntityTypeECO, models.ECOStatusCancelled, models.ECOStatusBacklog},
		{models.EntityTypeECO, models.ECOStatusBacklog, models.ECOStatusCompleted},
		{models.EntityTypeECN, models.ECNStatusEffective, models.ECNStatusDistributed},
		{models.EntityTypeECN, models.ECNStatusCancelled, models.ECNStatusPendingApproval},
		{models.EntityTypeECN, models.ECNStatusPendingApproval, models.ECNStatusEffective},
	}

	for _, edge := range rejected {
		//Act
		err := ValidateUserTransition(edge.entityType, edge.from, edge.to)

		//Assert
		assert.Error(t, err, "%s %s -> %s should be rejected", edge.entityType, edge.from, edge.to)
	}
}

func Test_ValidateUserTransition_ConvertedIsEngineOnly(t *testing.T) {
	//Act
	err := ValidateUserTransition(models.EntityTypeECR, models.ECRStatusApproved, models.ECRStatusConverted)

	//Assert
	assert.Error(t, err)
	assert.True(t, CanTransition(models.EntityTypeECR, models.ECRStatusApproved, models.ECRStatusConverted))
}

func Test_ValidateUserTransition_ErrorNamesTheEdge(t *testing.T) {
	//Act
	err := ValidateUserTransition(models.EntityTypeECO, models.ECOStatusCompleted, models.ECOStatusBacklog)

	//Assert
	var invalidErr *InvalidTransitionError
	assert.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, models.EntityTypeECO, invalidErr.EntityType)
	assert.Equal(t, models.ECOStatusCompleted, invalidErr.From)
	assert.Equal(t, models.ECOStatusBacklog, invalidErr.To)
}

func Test_TimestampColumns_ECRSubmitted(t *testing.T) {
	//Arrange
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	//Act
	stamps := TimestampColumns(models.EntityTypeECR, models.ECRStatusSubmitted, now)

	//Assert
	assert.Equal(t, map[string]time.Time{"submitted_at": now}, stamps)
}

func Test_TimestampColumns_ECNEffective(t *testing.T) {
	//Arrange
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	//Act
	stamps := TimestampColumns(models.EntityTypeECN, models.ECNStatusEffective, now)

	//Assert
	assert.Equal(t, map[string]time.Time{"effective_date": now}, stamps)
}

func Test_TimestampColumns_NoStampForCancellation(t *testing.T) {
	//Act
	stamps := TimestampColumns(models.EntityTypeECO, models.ECOStatusCancelled, time.Now())

	//Assert
	assert.Empty(t, stamps)
}

func Test_DerivePriority_HighestUrgencyWins(t *testing.T) {
	//Arrange
	urgencies := []string{models.UrgencyHigh, models.UrgencyCritical}

	//Act
	priority := DerivePriority(urgencies)

	//Assert
	assert.Equal(t, models.UrgencyCritical, priority)
}

func Test_DerivePriority_DefaultsToLow(t *testing.T) {
	//Act
	priority := DerivePriority(nil)

	//Assert
	assert.Equal(t, models.UrgencyLow, priority)
}

func Test_DerivePriority_OrderIndependent(t *testing.T) {
	//Act
	first := DerivePriority([]string{models.UrgencyLow, models.UrgencyHigh, models.UrgencyMedium})
	second := DerivePriority([]string{models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow})

	//Assert
	assert.Equal(t, models.UrgencyHigh, first)
	assert.Equal(t, first, second)
}

func Test_DeriveTargetDate_CriticalSLA(t *testing.T) {
	//Arrange
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	//Act
	target := DeriveTargetDate(models.UrgencyCritical, now)

	//Assert
	assert.Equal(t, now.AddDate(0, 0, 14), target)
}

func Test_DeriveTargetDate_UnknownPriorityFallsBackToLow(t *testing.T) {
	//Arrange
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	//Act
	target := DeriveTargetDate("URGENT", now)

	//Assert
	assert.Equal(t, now.AddDate(0, 0, models.PrioritySLADays[models.UrgencyLow]), target)
}
