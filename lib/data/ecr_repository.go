package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"changecontrol/lib/clients"
	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ECRRepository defines the interface for ECR data operations
type ECRRepository interface {
	CreateECR(ctx context.Context, orgID, userID int64, req *models.CreateECRRequest) (*models.ECR, error)
	GetECR(ctx context.Context, orgID, ecrID int64) (*models.ECR, error)
	GetECRsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECR, error)
	UpdateECR(ctx context.Context, orgID, ecrID, userID int64, req *models.UpdateECRRequest) (*models.ECR, error)
	AddECRAttachment(ctx context.Context, orgID, ecrID, userID int64, req *models.CreateECRAttachmentRequest) (*models.ECRAttachment, error)
	GetECRAttachments(ctx context.Context, orgID, ecrID int64) ([]models.ECRAttachment, error)
}

// ECRDao implements ECRRepository
type ECRDao struct {
	DB        *sql.DB
	Sequences SequenceRepository
	S3        clients.S3ClientInterface
	Bucket    string
	Logger    *logrus.Logger
}

// NewECRDao creates a new instance of ECRDao
func NewECRDao(db *sql.DB, sequences SequenceRepository, s3 clients.S3ClientInterface, bucket string, logger *logrus.Logger) ECRRepository {
	return &ECRDao{
		DB:        db,
		Sequences: sequences,
		S3:        s3,
		Bucket:    bucket,
		Logger:    logger,
	}
}

const ecrColumns = `
	e.id, e.org_id, e.ecr_number, e.title, e.description, e.reason,
	e.urgency, e.status, e.submitter_id, e.assignee_id, e.approver_id,
	e.eco_id, e.affected_products, e.affected_documents,
	e.cost_impact, e.schedule_impact_days,
	e.created_at, e.submitted_at, e.approved_at, e.updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanECR(row rowScanner) (*models.ECR, error) {
	var ecr models.ECR
	var assigneeID, approverID, ecoID sql.NullInt64
	var affectedProducts, affectedDocuments sql.NullString
	var costImpact sql.NullFloat64
	var scheduleImpactDays sql.NullInt32
	var submittedAt, approvedAt *time.Time

	err := row.Scan(
		&ecr.ID, &ecr.OrgID, &ecr.ECRNumber, &ecr.Title, &ecr.Description, &ecr.Reason,
		&ecr.Urgency, &ecr.Status, &ecr.SubmitterID, &assigneeID, &approverID,
		&ecoID, &affectedProducts, &affectedDocuments,
		&costImpact, &scheduleImpactDays,
		&ecr.CreatedAt, &submittedAt, &approvedAt, &ecr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assigneeID.Valid {
		ecr.AssigneeID = &assigneeID.Int64
	}
	if approverID.Valid {
		ecr.ApproverID = &approverID.Int64
	}
	if ecoID.Valid {
		ecr.ECOID = &ecoID.Int64
	}
	if affectedProducts.Valid {
		ecr.AffectedProducts = &affectedProducts.String
	}
	if affectedDocuments.Valid {
		ecr.AffectedDocuments = &affectedDocuments.String
	}
	if costImpact.Valid {
		ecr.CostImpact = &costImpact.Float64
	}
	if scheduleImpactDays.Valid {
		days := int(scheduleImpactDays.Int32)
		ecr.ScheduleImpactDays = &days
	}
	ecr.SubmittedAt = submittedAt
	ecr.ApprovedAt = approvedAt

	return &ecr, nil
}

// getUserRef fetches a user's id and display name
func getUserRef(ctx context.Context, q querier, userID int64) (*models.UserRef, error) {
	var user models.UserRef
	err := q.QueryRowContext(ctx, `
		SELECT id, CONCAT(first_name, ' ', last_name) as name
		FROM iam.users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Name)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// attachPeople fills the submitter/assignee/approver references on an ECR
func (dao *ECRDao) attachPeople(ctx context.Context, ecr *models.ECR) {
	if user, err := getUserRef(ctx, dao.DB, ecr.SubmitterID); err == nil {
		ecr.Submitter = user
	}
	if ecr.AssigneeID != nil {
		if user, err := getUserRef(ctx, dao.DB, *ecr.AssigneeID); err == nil {
			ecr.Assignee = user
		}
	}
	if ecr.ApproverID != nil {
		if user, err := getUserRef(ctx, dao.DB, *ecr.ApproverID); err == nil {
			ecr.Approver = user
		}
	}
}

// CreateECR creates a new ECR in DRAFT with a freshly allocated number. The
// number allocation, the insert and the creation revision commit together.
func (dao *ECRDao) CreateECR(ctx context.Context, orgID, userID int64, req *models.CreateECRRequest) (*models.ECR, error) {
	dao.Logger.WithFields(logrus.Fields{
		"org_id":  orgID,
		"user_id": userID,
		"title":   req.Title,
	}).Info("Starting ECR creation")

	now := time.Now()

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer tx.Rollback()

	ecrNumber, err := dao.Sequences.NextNumber(ctx, tx, orgID, models.EntityTypeECR, now.Year())
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	var ecrID int64
	var createdAt, updatedAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO change.ecrs (
			org_id, ecr_number, title, description, reason, urgency, status,
			submitter_id, assignee_id, affected_products, affected_documents,
			cost_impact, schedule_impact_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		orgID, ecrNumber, req.Title, req.Description, req.Reason, req.Urgency,
		models.ECRStatusDraft, userID, req.AssigneeID,
		req.AffectedProducts, req.AffectedDocuments,
		req.CostImpact, req.ScheduleImpactDays,
	).Scan(&ecrID, &createdAt, &updatedAt)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to insert ECR")
		return nil, &workflow.StoreError{Err: err}
	}

	ecr := &models.ECR{
		ID:                 ecrID,
		OrgID:              orgID,
		ECRNumber:          ecrNumber,
		Title:              req.Title,
		Description:        req.Description,
		Reason:             req.Reason,
		Urgency:            req.Urgency,
		Status:             models.ECRStatusDraft,
		SubmitterID:        userID,
		AssigneeID:         req.AssigneeID,
		AffectedProducts:   req.AffectedProducts,
		AffectedDocuments:  req.AffectedDocuments,
		CostImpact:         req.CostImpact,
		ScheduleImpactDays: req.ScheduleImpactDays,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}

	if _, err := insertRevision(ctx, tx, models.EntityTypeECR, ecrID, userID, nil, ecr.Snapshot(), nil, now); err != nil {
		dao.Logger.WithError(err).Error("Failed to record ECR creation revision")
		return nil, &workflow.StoreError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	dao.Logger.WithFields(logrus.Fields{
		"ecr_id":     ecrID,
		"ecr_number": ecrNumber,
	}).Info("ECR created successfully")

	dao.attachPeople(ctx, ecr)
	return ecr, nil
}

// GetECR retrieves a single ECR scoped to the caller's organization
func (dao *ECRDao) GetECR(ctx context.Context, orgID, ecrID int64) (*models.ECR, error) {
	row := dao.DB.QueryRowContext(ctx, `
		SELECT `+ecrColumns+`
		FROM change.ecrs e
		WHERE e.id = $1 AND e.org_id = $2`, ecrID, orgID)

	ecr, err := scanECR(row)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "ECR not found"}
	}
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to get ECR")
		return nil, &workflow.StoreError{Err: err}
	}

	dao.attachPeople(ctx, ecr)

	attachments, err := dao.GetECRAttachments(ctx, orgID, ecrID)
	if err == nil {
		ecr.Attachments = attachments
	}

	return ecr, nil
}

// GetECRsByOrg retrieves all ECRs for an organization with optional filters
func (dao *ECRDao) GetECRsByOrg(ctx context.Context, orgID int64, filters map[string]string) ([]models.ECR, error) {
	query := `
		SELECT ` + ecrColumns + `
		FROM change.ecrs e
		WHERE e.org_id = $1`

	args := []interface{}{orgID}
	argIndex := 2

	if status, ok := filters["status"]; ok && status != "" {
		query += fmt.Sprintf(" AND e.status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	if urgency, ok := filters["urgency"]; ok && urgency != "" {
		query += fmt.Sprintf(" AND e.urgency = $%d", argIndex)
		args = append(args, urgency)
		argIndex++
	}

	if assignee, ok := filters["assignee_id"]; ok && assignee != "" {
		query += fmt.Sprintf(" AND e.assignee_id = $%d", argIndex)
		args = append(args, assignee)
		argIndex++
	}

	query += " ORDER BY e.created_at DESC"

	rows, err := dao.DB.QueryContext(ctx, query, args...)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to query ECRs")
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	ecrs := []models.ECR{}
	for rows.Next() {
		ecr, err := scanECR(rows)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}
		dao.attachPeople(ctx, ecr)
		ecrs = append(ecrs, *ecr)
	}

	if err = rows.Err(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	return ecrs, nil
}

// UpdateECR updates non-status ECR fields and records the change as a revision
// in the same transaction
func (dao *ECRDao) UpdateECR(ctx context.Context, orgID, ecrID, userID int64, req *models.UpdateECRRequest) (*models.ECR, error) {
	now := time.Now()

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+ecrColumns+`
		FROM change.ecrs e
		WHERE e.id = $1 AND e.org_id = $2
		FOR UPDATE`, ecrID, orgID)

	ecr, err := scanECR(row)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "ECR not found"}
	}
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	previous := ecr.Snapshot()

	var setClauses []string
	var args []interface{}
	argIndex := 1

	if req.Title != "" {
		ecr.Title = req.Title
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argIndex))
		args = append(args, req.Title)
		argIndex++
	}

	if req.Description != "" {
		ecr.Description = req.Description
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIndex))
		args = append(args, req.Description)
		argIndex++
	}

	if req.Reason != "" {
		ecr.Reason = req.Reason
		setClauses = append(setClauses, fmt.Sprintf("reason = $%d", argIndex))
		args = append(args, req.Reason)
		argIndex++
	}

	if req.Urgency != "" {
		ecr.Urgency = req.Urgency
		setClauses = append(setClauses, fmt.Sprintf("urgency = $%d", argIndex))
		args = append(args, req.Urgency)
		argIndex++
	}

	if req.AssigneeID != nil {
		ecr.AssigneeID = req.AssigneeID
		setClauses = append(setClauses, fmt.Sprintf("assignee_id = $%d", argIndex))
		args = append(args, *req.AssigneeID)
		argIndex++
	}

	if req.AffectedProducts != nil {
		ecr.AffectedProducts = req.AffectedProducts
		setClauses = append(setClauses, fmt.Sprintf("affected_products = $%d", argIndex))
		args = append(args, *req.AffectedProducts)
		argIndex++
	}

	if req.AffectedDocuments != nil {
		ecr.AffectedDocuments = req.AffectedDocuments
		setClauses = append(setClauses, fmt.Sprintf("affected_documents = $%d", argIndex))
		args = append(args, *req.AffectedDocuments)
		argIndex++
	}

	if req.CostImpact != nil {
		ecr.CostImpact = req.CostImpact
		setClauses = append(setClauses, fmt.Sprintf("cost_impact = $%d", argIndex))
		args = append(args, *req.CostImpact)
		argIndex++
	}

	if req.ScheduleImpactDays != nil {
		ecr.ScheduleImpactDays = req.ScheduleImpactDays
		setClauses = append(setClauses, fmt.Sprintf("schedule_impact_days = $%d", argIndex))
		args = append(args, *req.ScheduleImpactDays)
		argIndex++
	}

	if len(setClauses) == 0 {
		return nil, &workflow.ValidationError{Message: "no updatable fields in request"}
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, now)
	argIndex++

	args = append(args, ecrID)

	query := fmt.Sprintf(`
		UPDATE change.ecrs
		SET %s
		WHERE id = $%d`, strings.Join(setClauses, ", "), argIndex)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		dao.Logger.WithError(err).Error("Failed to update ECR")
		return nil, &workflow.StoreError{Err: err}
	}

	if _, err := insertRevision(ctx, tx, models.EntityTypeECR, ecrID, userID, previous, ecr.Snapshot(), nil, now); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	return dao.GetECR(ctx, orgID, ecrID)
}

// AddECRAttachment registers attachment metadata and returns a presigned S3
// upload URL for the actual file transfer
func (dao *ECRDao) AddECRAttachment(ctx context.Context, orgID, ecrID, userID int64, req *models.CreateECRAttachmentRequest) (*models.ECRAttachment, error) {
	// Validate the ECR exists in the caller's organization
	if _, err := dao.GetECR(ctx, orgID, ecrID); err != nil {
		return nil, err
	}

	s3Key := fmt.Sprintf("ecr-attachments/%d/%d/%s-%s", orgID, ecrID, uuid.New().String(), req.FileName)

	attachment := &models.ECRAttachment{
		ECRID:     ecrID,
		FileName:  req.FileName,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
		S3Bucket:  dao.Bucket,
		S3Key:     s3Key,
		CreatedBy: userID,
	}

	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO change.ecr_attachments (
			ecr_id, file_name, file_type, file_size, s3_bucket, s3_key, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		ecrID, req.FileName, req.FileType, req.FileSize, dao.Bucket, s3Key, userID,
	).Scan(&attachment.ID, &attachment.CreatedAt)
	if err != nil {
		dao.Logger.WithError(err).Error("Failed to insert ECR attachment")
		return nil, &workflow.StoreError{Err: err}
	}

	if dao.S3 != nil {
		uploadURL, err := dao.S3.GenerateUploadURL(s3Key, 15*time.Minute)
		if err != nil {
			dao.Logger.WithError(err).Warn("Failed to generate upload URL for ECR attachment")
		} else {
			attachment.UploadURL = uploadURL
		}
	}

	return attachment, nil
}

// GetECRAttachments retrieves all attachments for an ECR
func (dao *ECRDao) GetECRAttachments(ctx context.Context, orgID, ecrID int64) ([]models.ECRAttachment, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT a.id, a.ecr_id, a.file_name, a.file_type, a.file_size,
		       a.s3_bucket, a.s3_key, a.created_at, a.created_by
		FROM change.ecr_attachments a
		JOIN change.ecrs e ON a.ecr_id = e.id
		WHERE a.ecr_id = $1 AND e.org_id = $2
		ORDER BY a.created_at DESC`, ecrID, orgID)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	attachments := []models.ECRAttachment{}
	for rows.Next() {
		var att models.ECRAttachment
		var fileType sql.NullString
		var fileSize sql.NullInt64

		err := rows.Scan(
			&att.ID, &att.ECRID, &att.FileName, &fileType, &fileSize,
			&att.S3Bucket, &att.S3Key, &att.CreatedAt, &att.CreatedBy,
		)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		if fileType.Valid {
			att.FileType = &fileType.String
		}
		if fileSize.Valid {
			att.FileSize = &fileSize.Int64
		}

		attachments = append(attachments, att)
	}

	return attachments, nil
}
