package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(v string) *string {
	return &v
}

func Test_ChangedFields_DetectsValueChanges(t *testing.T) {
	//Arrange
	previous := map[string]interface{}{
		"title":  "Old title",
		"status": "DRAFT",
	}
	current := map[string]interface{}{
		"title":  "New title",
		"status": "DRAFT",
	}

	//Act
	changed := ChangedFields(previous, current)

	//Assert
	assert.Equal(t, []string{"title"}, changed)
}

func Test_ChangedFields_SortedOutput(t *testing.T) {
	//Arrange
	previous := map[string]interface{}{
		"urgency": "LOW",
		"title":   "A",
		"reason":  "old",
	}
	current := map[string]interface{}{
		"urgency": "HIGH",
		"title":   "B",
		"reason":  "new",
	}

	//Act
	changed := ChangedFields(previous, current)

	//Assert
	assert.Equal(t, []string{"reason", "title", "urgency"}, changed)
}

func Test_ChangedFields_CreationSnapshot(t *testing.T) {
	//Arrange
	current := map[string]interface{}{
		"title":  "First",
		"status": "DRAFT",
	}

	//Act
	changed := ChangedFields(nil, current)

	//Assert
	assert.Equal(t, []string{"status", "title"}, changed)
}

func Test_ChangedFields_NoChanges(t *testing.T) {
	//Arrange
	snapshot := map[string]interface{}{
		"title":  "Same",
		"status": "DRAFT",
	}

	//Act
	changed := ChangedFields(snapshot, snapshot)

	//Assert
	assert.Empty(t, changed)
}

func Test_ChangedFields_PointerValuesCompareByValue(t *testing.T) {
	//Arrange
	previous := map[string]interface{}{
		"assignee_id": strPtr("alice"),
	}
	current := map[string]interface{}{
		"assignee_id": strPtr("alice"),
	}

	//Act
	changed := ChangedFields(previous, current)

	//Assert
	assert.Empty(t, changed)
}

func Test_ChangedFields_NilPointerVersusValue(t *testing.T) {
	//Arrange
	var nilAssignee *string
	previous := map[string]interface{}{
		"assignee_id": nilAssignee,
	}
	current := map[string]interface{}{
		"assignee_id": strPtr("bob"),
	}

	//Act
	changed := ChangedFields(previous, current)

	//Assert
	assert.Equal(t, []string{"assignee_id"}, changed)
}

func Test_ChangedFields_FieldOnlyInPrevious(t *testing.T) {
	//Arrange
	previous := map[string]interface{}{
		"title":  "Kept",
		"eco_id": int64(7),
	}
	current := map[string]interface{}{
		"title": "Kept",
	}

	//Act
	changed := ChangedFields(previous, current)

	//Assert
	assert.Equal(t, []string{"eco_id"}, changed)
}
