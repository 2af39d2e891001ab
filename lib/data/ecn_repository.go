package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ECNRepository defines the interface for ECN read operations and
// per-stakeholder acknowledgments. ECNs are created exclusively by the
// promotion engine.
type ECNRepository interface {
	GetECN(ctx context.Context, orgID, ecnID int64) (*models.ECN, error)
	GetECNsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECN, error)
	AcknowledgeECN(ctx context.Context, orgID, ecnID, userID int64, req *models.AcknowledgeECNRequest) (*models.ECNAcknowledgment, error)
}

// ECNDao implements ECNRepository
type ECNDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewECNDao creates a new instance of ECNDao
func NewECNDao(db *sql.DB, logger *logrus.Logger) ECNRepository {
	return &ECNDao{DB: db, Logger: logger}
}

const ecnColumns = `
	n.id, n.org_id, n.ecn_number, n.eco_id, n.title, n.description, n.status,
	n.submitter_id, n.assignee_id, n.disposition, n.verification,
	n.created_at, n.distributed_at, n.effective_date, n.updated_at`

func scanECN(row rowScanner) (*models.ECN, error) {
	var ecn models.ECN
	var assigneeID sql.NullInt64
	var disposition, verification sql.NullString
	var distributedAt, effectiveDate *time.Time

	err := row.Scan(
		&ecn.ID, &ecn.OrgID, &ecn.ECNNumber, &ecn.ECOID, &ecn.Title, &ecn.Description, &ecn.Status,
		&ecn.SubmitterID, &assigneeID, &disposition, &verification,
		&ecn.CreatedAt, &distributedAt, &effectiveDate, &ecn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assigneeID.Valid {
		ecn.AssigneeID = &assigneeID.Int64
	}
	if disposition.Valid {
		ecn.Disposition = &disposition.String
	}
	if verification.Valid {
		ecn.Verification = &verification.String
	}
	ecn.DistributedAt = distributedAt
	ecn.EffectiveDate = effectiveDate

	return &ecn, nil
}

func (dao *ECNDao) attachPeople(ctx context.Context, ecn *models.ECN) {
	if user, err := getUserRef(ctx, dao.DB, ecn.SubmitterID); err == nil {
		ecn.Submitter = user
	}
	if ecn.AssigneeID != nil {
		if user, err := getUserRef(ctx, dao.DB, *ecn.AssigneeID); err == nil {
			ecn.Assignee = user
		}
	}
}

// GetECN retrieves a single ECN with its acknowledgments
func (dao *ECNDao) GetECN(ctx context.Context, orgID, ecnID int64) (*models.ECN, error) {
	row := dao.DB.QueryRowContext(ctx, `
		SELECT `+ecnColumns+`
		FROM change.ecns n
		WHERE n.id = $1 AND n.org_id = $2`, ecnID, orgID)

	ecn, err := scanECN(row)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "ECN not found"}
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to get ECN")
		return nil, &workflow.StoreError{Err: err}
	}

	dao.attachPeople(ctx, ecn)

	acks, err := dao.getAcknowledgments(ctx, ecnID)
	if err != nil {
		dao.Logger.WithError(err).Warn("Failed to get ECN acknowledgments")
		acks = []models.ECNAcknowledgment{}
	}
	ecn.Acknowledgments = acks

	return ecn, nil
}

// GetECNsByOrg retrieves all ECNs for an organization with optional filters
func (dao *ECNDao) GetECNsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECN, error) {
	query := `
		SELECT ` + ecnColumns + `
		FROM change.ecns n
		WHERE n.org_id = $1`

	args := []interface{}{orgID}
	argIndex := 2

	if status, ok := filters["status"]; ok && status != "" {
		query += fmt.Sprintf(" AND n.status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	query += " ORDER BY n.created_at DESC"

	rows, err := dao.DB.QueryContext(ctx, query, args...)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query ECNs")
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	ecns := []models.ECN{}
	for rows.Next() {
		ecn, err := scanECN(rows)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}
		dao.attachPeople(ctx, ecn)
		ecns = append(ecns, *ecn)
	}

	if err = rows.Err(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	return ecns, nil
}

// AcknowledgeECN records that a stakeholder has seen a distributed ECN.
// Acknowledging twice is a conflict, and only a distributed or effective ECN
// can be acknowledged.
func (dao *ECNDao) AcknowledgeECN(ctx context.Context, orgID, ecnID, userID int64, req *models.AcknowledgeECNRequest) (*models.ECNAcknowledgment, error) {
	ecn, err := dao.GetECN(ctx, orgID, ecnID)
	if err != nil {
		return nil, err
	}

	if ecn.Status != models.ECNStatusDistributed && ecn.Status != models.ECNStatusEffective {
		return nil, &workflow.NotEligibleError{
			Message:   "ECN has not been distributed",
			EntityIDs: []int64{ecnID},
		}
	}

	ack := &models.ECNAcknowledgment{
		ECNID:  ecnID,
		UserID: userID,
		Note:   req.Note,
	}

	err = dao.DB.QueryRowContext(ctx, `
		INSERT INTO change.ecn_acknowledgments (ecn_id, user_id, note)
		VALUES ($1, $2, $3)
		RETURNING id, acknowledged_at`,
		ecnID, userID, req.Note,
	).Scan(&ack.ID, &ack.AcknowledgedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, &workflow.ConflictError{Message: "ECN already acknowledged by this user"}
		}
		dao.Logger.WithError(err).Error("Failed to insert ECN acknowledgment")
		return nil, &workflow.StoreError{Err: err}
	}

	if user, err := getUserRef(ctx, dao.DB, userID); err == nil {
		ack.UserName = user.Name
	}

	return ack, nil
}

// getAcknowledgments retrieves all acknowledgments for an ECN
func (dao *ECNDao) getAcknowledgments(ctx context.Context, ecnID int64) ([]models.ECNAcknowledgment, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT a.id, a.ecn_id, a.user_id,
		       CONCAT(u.first_name, ' ', u.last_name) as user_name,
		       a.acknowledged_at, a.note
		FROM change.ecn_acknowledgments a
		LEFT JOIN iam.users u ON a.user_id = u.id
		WHERE a.ecn_id = $1
		ORDER BY a.acknowledged_at ASC`, ecnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	acks := []models.ECNAcknowledgment{}
	for rows.Next() {
		var ack models.ECNAcknowledgment
		var userName sql.NullString
		var note sql.NullString

		err := rows.Scan(&ack.ID, &ack.ECNID, &ack.UserID, &userName, &ack.AcknowledgedAt, &note)
		if err != nil {
			return nil, err
		}

		if userName.Valid {
			ack.UserName = userName.String
		}
		if note.Valid {
			ack.Note = &note.String
		}

		acks = append(acks, ack)
	}

	return acks, rows.Err()
}
