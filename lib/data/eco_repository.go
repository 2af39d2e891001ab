package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/sirupsen/logrus"
)

// ECORepository defines the interface for ECO read/update operations.
// ECOs are created exclusively by the bundling engine.
type ECORepository interface {
	GetECO(ctx context.Context, orgID, ecoID int64) (*models.ECO, error)
	GetECOsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECO, error)
	UpdateECO(ctx context.Context, orgID, ecoID, userID int64, req *models.UpdateECORequest) (*models.ECO, error)
}

// ECODao implements ECORepository
type ECODao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewECODao creates a new instance of ECODao
func NewECODao(db *sql.DB, logger *logrus.Logger) ECORepository {
	return &ECODao{DB: db, Logger: logger}
}

const ecoColumns = `
	o.id, o.org_id, o.eco_number, o.title, o.description, o.status,
	o.priority, o.target_date, o.submitter_id, o.assignee_id, o.approver_id,
	o.implementation_plan, o.testing_plan, o.rollback_plan,
	o.created_at, o.completed_at, o.updated_at`

func scanECO(row rowScanner) (*models.ECO, error) {
	var eco models.ECO
	var assigneeID, approverID sql.NullInt64
	var implementationPlan, testingPlan, rollbackPlan sql.NullString
	var targetDate, completedAt *time.Time

	err := row.Scan(
		&eco.ID, &eco.OrgID, &eco.ECONumber, &eco.Title, &eco.Description, &eco.Status,
		&eco.Priority, &targetDate, &eco.SubmitterID, &assigneeID, &approverID,
		&implementationPlan, &testingPlan, &rollbackPlan,
		&eco.CreatedAt, &completedAt, &eco.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assigneeID.Valid {
		eco.AssigneeID = &assigneeID.Int64
	}
	if approverID.Valid {
		eco.ApproverID = &approverID.Int64
	}
	if implementationPlan.Valid {
		eco.ImplementationPlan = &implementationPlan.String
	}
	if testingPlan.Valid {
		eco.TestingPlan = &testingPlan.String
	}
	if rollbackPlan.Valid {
		eco.RollbackPlan = &rollbackPlan.String
	}
	eco.TargetDate = targetDate
	eco.CompletedAt = completedAt

	return &eco, nil
}

// loadECRIDs fetches the ids of the ECRs bundled into an ECO
func loadECRIDs(ctx context.Context, q querier, ecoID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM change.ecrs WHERE eco_id = $1 ORDER BY id`, ecoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (dao *ECODao) attachPeople(ctx context.Context, eco *models.ECO) {
	if user, err := getUserRef(ctx, dao.DB, eco.SubmitterID); err == nil {
		eco.Submitter = user
	}
	if eco.AssigneeID != nil {
		if user, err := getUserRef(ctx, dao.DB, *eco.AssigneeID); err == nil {
			eco.Assignee = user
		}
	}
	if eco.ApproverID != nil {
		if user, err := getUserRef(ctx, dao.DB, *eco.ApproverID); err == nil {
			eco.Approver = user
		}
	}
}

// GetECO retrieves a single ECO with its bundled ECR ids
func (dao *ECODao) GetECO(ctx context.Context, orgID, ecoID int64) (*models.ECO, error) {
	row := dao.DB.QueryRowContext(ctx, `
		SELECT `+ecoColumns+`
		FROM change.ecos o
		WHERE o.id = $1 AND o.org_id = $2`, ecoID, orgID)

	eco, err := scanECO(row)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "ECO not found"}
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to get ECO")
		return nil, &workflow.StoreError{Err: err}
	}

	ecrIDs, err := loadECRIDs(ctx, dao.DB, ecoID)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	eco.ECRIDs = ecrIDs

	dao.attachPeople(ctx, eco)

	return eco, nil
}

// GetECOsByOrg retrieves all ECOs for an organization with optional filters
func (dao *ECODao) GetECOsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECO, error) {
	query := `
		SELECT ` + ecoColumns + `
		FROM change.ecos o
		WHERE o.org_id = $1`

	args := []interface{}{orgID}
	argIndex := 2

	if status, ok := filters["status"]; ok && status != "" {
		query += fmt.Sprintf(" AND o.status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	if priority, ok := filters["priority"]; ok && priority != "" {
		query += fmt.Sprintf(" AND o.priority = $%d", argIndex)
		args = append(args, priority)
		argIndex++
	}

	query += " ORDER BY o.created_at DESC"

	rows, err := dao.DB.QueryContext(ctx, query, args...)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query ECOs")
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	ecos := []models.ECO{}
	for rows.Next() {
		eco, err := scanECO(rows)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}
		dao.attachPeople(ctx, eco)
		ecos = append(ecos, *eco)
	}

	if err = rows.Err(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	return ecos, nil
}

// UpdateECO updates ECO plan fields and records the change as a revision in
// the same transaction. Status changes go through the workflow engine.
func (dao *ECODao) UpdateECO(ctx context.Context, orgID, ecoID, userID int64, req *models.UpdateECORequest) (*models.ECO, error) {
	now := time.Now()

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+ecoColumns+`
		FROM change.ecos o
		WHERE o.id = $1 AND o.org_id = $2
		FOR UPDATE`, ecoID, orgID)

	eco, err := scanECO(row)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "ECO not found"}
	}
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	previous := eco.Snapshot()

	var setClauses []string
	var args []interface{}
	argIndex := 1

	if req.Title != "" {
		eco.Title = req.Title
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argIndex))
		args = append(args, req.Title)
		argIndex++
	}

	if req.Description != "" {
		eco.Description = req.Description
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIndex))
		args = append(args, req.Description)
		argIndex++
	}

	if req.AssigneeID != nil {
		eco.AssigneeID = req.AssigneeID
		setClauses = append(setClauses, fmt.Sprintf("assignee_id = $%d", argIndex))
		args = append(args, *req.AssigneeID)
		argIndex++
	}

	if req.ImplementationPlan != nil {
		eco.ImplementationPlan = req.ImplementationPlan
		setClauses = append(setClauses, fmt.Sprintf("implementation_plan = $%d", argIndex))
		args = append(args, *req.ImplementationPlan)
		argIndex++
	}

	if req.TestingPlan != nil {
		eco.TestingPlan = req.TestingPlan
		setClauses = append(setClauses, fmt.Sprintf("testing_plan = $%d", argIndex))
		args = append(args, *req.TestingPlan)
		argIndex++
	}

	if req.RollbackPlan != nil {
		eco.RollbackPlan = req.RollbackPlan
		setClauses = append(setClauses, fmt.Sprintf("rollback_plan = $%d", argIndex))
		args = append(args, *req.RollbackPlan)
		argIndex++
	}

	if len(setClauses) == 0 {
		return nil, &workflow.ValidationError{Message: "no updatable fields in request"}
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, now)
	argIndex++

	args = append(args, ecoID)

	query := fmt.Sprintf(`
		UPDATE change.ecos
		SET %s
		WHERE id = $%d`, strings.Join(setClauses, ", "), argIndex)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		dao.Logger.WithError(err).Error("Failed to update ECO")
		return nil, &workflow.StoreError{Err: err}
	}

	if _, err := insertRevision(ctx, tx, models.EntityTypeECO, ecoID, userID, previous, eco.Snapshot(), nil, now); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	return dao.GetECO(ctx, orgID, ecoID)
}
