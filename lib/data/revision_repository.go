package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// RevisionRepository reads the append-only audit trail
type RevisionRepository interface {
	GetRevisions(ctx context.Context, orgID int64, entityType string, entityID int64) ([]models.Revision, error)
}

// RevisionDao implements RevisionRepository
type RevisionDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewRevisionDao creates a new instance of RevisionDao
func NewRevisionDao(db *sql.DB, logger *logrus.Logger) RevisionRepository {
	return &RevisionDao{DB: db, Logger: logger}
}

// insertRevision writes one revision row on the caller's transaction, so a
// reader never observes a mutation without its revision. previous is nil for
// creations. Returns the changed field list it recorded.
func insertRevision(ctx context.Context, q querier, entityType string, entityID, changedBy int64, previous, current map[string]interface{}, note *string, now time.Time) ([]string, error) {
	changed := workflow.ChangedFields(previous, current)

	var previousJSON []byte
	if previous != nil {
		var err error
		previousJSON, err = json.Marshal(previous)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal previous snapshot: %w", err)
		}
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new snapshot: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO change.revisions (
			entity_type, entity_id, changed_at, changed_by,
			previous_data, new_data, changed_fields, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entityType, entityID, now, changedBy,
		previousJSON, currentJSON, pq.Array(changed), note,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert revision: %w", err)
	}

	return changed, nil
}

// GetRevisions retrieves the revision history for an entity, most recent first
func (dao *RevisionDao) GetRevisions(ctx context.Context, orgID int64, entityType string, entityID int64) ([]models.Revision, error) {
	if err := entityExistsInOrg(ctx, dao.DB, orgID, entityType, entityID); err != nil {
		return nil, err
	}

	query := `
		SELECT
			r.id, r.entity_type, r.entity_id, r.changed_at, r.changed_by,
			CONCAT(u.first_name, ' ', u.last_name) as changed_by_name,
			r.previous_data, r.new_data, r.changed_fields, r.note
		FROM change.revisions r
		LEFT JOIN iam.users u ON r.changed_by = u.id
		WHERE r.entity_type = $1 AND r.entity_id = $2
		ORDER BY r.changed_at DESC, r.id DESC`

	rows, err := dao.DB.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query revisions")
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	revisions := []models.Revision{}
	for rows.Next() {
		var rev models.Revision
		var previousData []byte
		var changedByName sql.NullString
		var changedFields pq.StringArray
		var note sql.NullString

		err := rows.Scan(
			&rev.ID, &rev.EntityType, &rev.EntityID, &rev.ChangedAt, &rev.ChangedBy,
			&changedByName, &previousData, &rev.NewData, &changedFields, &note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}

		if previousData != nil {
			rev.PreviousData = json.RawMessage(previousData)
		}
		if changedByName.Valid {
			rev.ChangedByName = changedByName.String
		}
		if note.Valid {
			rev.Note = &note.String
		}
		rev.ChangedFields = []string(changedFields)

		revisions = append(revisions, rev)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// entityExistsInOrg verifies the entity the history is requested for belongs
// to the caller's organization. Missing and foreign entities are reported the
// same way.
func entityExistsInOrg(ctx context.Context, q querier, orgID int64, entityType string, entityID int64) error {
	table, ok := entityTables[entityType]
	if !ok {
		return &workflow.ValidationError{Message: fmt.Sprintf("unknown entity type: %s", entityType)}
	}

	var id int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE id = $1 AND org_id = $2", table),
		entityID, orgID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return &workflow.NotFoundError{Message: fmt.Sprintf("%s not found", entityType)}
	}
	if err != nil {
		return &workflow.StoreError{Err: err}
	}
	return nil
}

// entityTables maps entity types to their backing tables
var entityTables = map[string]string{
	models.EntityTypeECR: "change.ecrs",
	models.EntityTypeECO: "change.ecos",
	models.EntityTypeECN: "change.ecns",
}
