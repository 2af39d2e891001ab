package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// EngineRepository is the bundling/promotion engine: the only writer allowed
// to convert ECRs, create ECOs/ECNs, or move any entity between statuses.
// Every operation is a single transaction; a failure leaves zero partial
// effects, including the sequence number it would have consumed.
type EngineRepository interface {
	BundleECRs(ctx context.Context, orgID, userID int64, req *models.BundleECRsRequest) (*models.BundleECRsResponse, error)
	PromoteECOToECN(ctx context.Context, orgID, userID, ecoID int64) (*models.ECN, error)
	TransitionStatus(ctx context.Context, entityType string, orgID, entityID, userID int64, req *models.StatusChangeRequest) (interface{}, error)
}

// EngineDao implements EngineRepository
type EngineDao struct {
	DB        *sql.DB
	Sequences SequenceRepository
	Logger    *logrus.Logger
}

// NewEngineDao creates a new instance of EngineDao
func NewEngineDao(db *sql.DB, sequences SequenceRepository, logger *logrus.Logger) EngineRepository {
	return &EngineDao{
		DB:        db,
		Sequences: sequences,
		Logger:    logger,
	}
}

// runTx executes fn in a transaction, retrying once on transient lock
// contention. Typed workflow errors pass through unchanged; anything else is
// wrapped as a StoreError.
func (dao *EngineDao) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		tx, err := dao.DB.BeginTx(ctx, nil)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		err = fn(tx)
		if err != nil {
			tx.Rollback()
			if IsRetryableStoreError(err) && attempt == 0 {
				dao.Logger.WithError(err).Warn("Transient store error, retrying transaction")
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if IsRetryableStoreError(err) && attempt == 0 {
				dao.Logger.WithError(err).Warn("Transient commit error, retrying transaction")
				lastErr = err
				continue
			}
			return &workflow.StoreError{Err: err}
		}

		return nil
	}

	return &workflow.StoreError{Err: lastErr}
}

// BundleECRs converts a set of approved, unlinked ECRs into a new ECO.
// The ECO insert, the sequence allocation, every ECR conversion and all
// revision rows commit atomically or not at all.
func (dao *EngineDao) BundleECRs(ctx context.Context, orgID, userID int64, req *models.BundleECRsRequest) (*models.BundleECRsResponse, error) {
	if req == nil {
		return nil, &workflow.ValidationError{Message: "bundling requires at least 2 distinct ECR ids"}
	}
	ecrIDs := dedupeIDs(req.ECRIDs)
	if len(ecrIDs) < 2 {
		return nil, &workflow.ValidationError{Message: "bundling requires at least 2 distinct ECR ids"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, &workflow.ValidationError{Message: "title is required"}
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, &workflow.ValidationError{Message: "description is required"}
	}

	dao.Logger.WithFields(logrus.Fields{
		"org_id":  orgID,
		"user_id": userID,
		"ecr_ids": ecrIDs,
	}).Info("Starting ECR bundling")

	now := time.Now()
	var response *models.BundleECRsResponse

	err := dao.runTx(ctx, func(tx *sql.Tx) error {
		// Lock the candidate ECRs for the duration of the bundle
		rows, err := tx.QueryContext(ctx, `
			SELECT `+ecrColumns+`
			FROM change.ecrs e
			WHERE e.id = ANY($1) AND e.org_id = $2
			ORDER BY e.id
			FOR UPDATE`, pq.Array(ecrIDs), orgID)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		found := map[int64]*models.ECR{}
		for rows.Next() {
			ecr, err := scanECR(rows)
			if err != nil {
				rows.Close()
				return &workflow.StoreError{Err: err}
			}
			found[ecr.ID] = ecr
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return &workflow.StoreError{Err: err}
		}

		var missing, notApproved, alreadyLinked []int64
		for _, id := range ecrIDs {
			ecr, ok := found[id]
			if !ok {
				missing = append(missing, id)
				continue
			}
			if ecr.ECOID != nil {
				alreadyLinked = append(alreadyLinked, id)
			} else if ecr.Status != models.ECRStatusApproved {
				notApproved = append(notApproved, id)
			}
		}

		if len(missing) > 0 {
			return &workflow.NotEligibleError{Message: "ECRs not found in organization", EntityIDs: missing}
		}
		if len(alreadyLinked) > 0 {
			return &workflow.NotEligibleError{Message: "ECRs already bundled into an ECO", EntityIDs: alreadyLinked}
		}
		if len(notApproved) > 0 {
			return &workflow.NotEligibleError{Message: "ECRs are not approved", EntityIDs: notApproved}
		}

		// Derive ECO fields from the bundle, in request order
		urgencies := make([]string, 0, len(ecrIDs))
		for _, id := range ecrIDs {
			urgencies = append(urgencies, found[id].Urgency)
		}
		priority := workflow.DerivePriority(urgencies)
		targetDate := workflow.DeriveTargetDate(priority, now)

		// Assignee defaults to the first ECR's assignee, falling back to its submitter
		first := found[ecrIDs[0]]
		assigneeID := first.SubmitterID
		if first.AssigneeID != nil {
			assigneeID = *first.AssigneeID
		}

		ecoNumber, err := dao.Sequences.NextNumber(ctx, tx, orgID, models.EntityTypeECO, now.Year())
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		var ecoID int64
		var createdAt, updatedAt time.Time
		err = tx.QueryRowContext(ctx, `
			INSERT INTO change.ecos (
				org_id, eco_number, title, description, status,
				priority, target_date, submitter_id, assignee_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at`,
			orgID, ecoNumber, req.Title, req.Description, models.ECOStatusBacklog,
			priority, targetDate, userID, assigneeID,
		).Scan(&ecoID, &createdAt, &updatedAt)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		eco := &models.ECO{
			ID:          ecoID,
			OrgID:       orgID,
			ECONumber:   ecoNumber,
			Title:       req.Title,
			Description: req.Description,
			Status:      models.ECOStatusBacklog,
			Priority:    priority,
			TargetDate:  &targetDate,
			SubmitterID: userID,
			AssigneeID:  &assigneeID,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
			ECRIDs:      append([]int64{}, ecrIDs...),
		}

		if _, err := insertRevision(ctx, tx, models.EntityTypeECO, ecoID, userID, nil, eco.Snapshot(), nil, now); err != nil {
			return &workflow.StoreError{Err: err}
		}

		// Convert every bundled ECR and record each conversion
		updatedECRs := make([]models.ECR, 0, len(ecrIDs))
		for _, id := range ecrIDs {
			ecr := found[id]
			previous := ecr.Snapshot()

			_, err := tx.ExecContext(ctx, `
				UPDATE change.ecrs
				SET eco_id = $1, status = $2, updated_at = $3
				WHERE id = $4`,
				ecoID, models.ECRStatusConverted, now, id)
			if err != nil {
				return &workflow.StoreError{Err: err}
			}

			ecr.ECOID = &ecoID
			ecr.Status = models.ECRStatusConverted
			ecr.UpdatedAt = now

			if _, err := insertRevision(ctx, tx, models.EntityTypeECR, id, userID, previous, ecr.Snapshot(), nil, now); err != nil {
				return &workflow.StoreError{Err: err}
			}

			updatedECRs = append(updatedECRs, *ecr)
		}

		response = &models.BundleECRsResponse{ECO: eco, UpdatedECRs: updatedECRs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dao.Logger.WithFields(logrus.Fields{
		"eco_id":     response.ECO.ID,
		"eco_number": response.ECO.ECONumber,
		"priority":   response.ECO.Priority,
		"ecr_count":  len(response.UpdatedECRs),
	}).Info("ECRs bundled successfully")

	return response, nil
}

// PromoteECOToECN creates the ECN for a completed ECO. The ECN number reuses
// the ECO number's year/sequence suffix rather than consuming a new sequence
// value, so ECO-25-001 always pairs with ECN-25-001.
func (dao *EngineDao) PromoteECOToECN(ctx context.Context, orgID, userID, ecoID int64) (*models.ECN, error) {
	dao.Logger.WithFields(logrus.Fields{
		"org_id":  orgID,
		"user_id": userID,
		"eco_id":  ecoID,
	}).Info("Starting ECO promotion")

	now := time.Now()
	var ecn *models.ECN

	err := dao.runTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+ecoColumns+`
			FROM change.ecos o
			WHERE o.id = $1 AND o.org_id = $2
			FOR UPDATE`, ecoID, orgID)

		eco, err := scanECO(row)
		if err == sql.ErrNoRows {
			return &workflow.NotFoundError{Message: "ECO not found"}
		}
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		if eco.Status != models.ECOStatusCompleted {
			return &workflow.NotEligibleError{
				Message:   "ECO is not completed",
				EntityIDs: []int64{ecoID},
			}
		}

		var existingID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM change.ecns WHERE eco_id = $1`, ecoID).Scan(&existingID)
		if err == nil {
			return &workflow.ConflictError{Message: fmt.Sprintf("ECN already exists for ECO %s", eco.ECONumber)}
		}
		if err != sql.ErrNoRows {
			return &workflow.StoreError{Err: err}
		}

		ecnNumber := models.EntityTypeECN + strings.TrimPrefix(eco.ECONumber, models.EntityTypeECO)

		// Defensive duplicate guard: the derived number must not collide with
		// an unrelated record. A hit here is a data-integrity problem and is
		// reported, not overwritten.
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM change.ecns WHERE org_id = $1 AND ecn_number = $2`,
			orgID, ecnNumber).Scan(&existingID)
		if err == nil {
			return &workflow.ConflictError{Message: fmt.Sprintf("ECN number %s already in use", ecnNumber)}
		}
		if err != sql.ErrNoRows {
			return &workflow.StoreError{Err: err}
		}

		assigneeID := eco.SubmitterID
		if eco.AssigneeID != nil {
			assigneeID = *eco.AssigneeID
		}

		description := eco.Description
		if eco.ImplementationPlan != nil && *eco.ImplementationPlan != "" {
			description += "\n\nImplementation: " + *eco.ImplementationPlan
		}

		// Carry forward the affected items from the bundled ECRs
		affected, err := collectAffectedItems(ctx, tx, ecoID)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}
		var disposition *string
		if affected != "" {
			disposition = &affected
		}

		var ecnID int64
		var createdAt, updatedAt time.Time
		err = tx.QueryRowContext(ctx, `
			INSERT INTO change.ecns (
				org_id, ecn_number, eco_id, title, description, status,
				submitter_id, assignee_id, disposition
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at`,
			orgID, ecnNumber, ecoID, eco.Title, description, models.ECNStatusPendingApproval,
			userID, assigneeID, disposition,
		).Scan(&ecnID, &createdAt, &updatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return &workflow.ConflictError{Message: fmt.Sprintf("ECN already exists for ECO %s", eco.ECONumber)}
			}
			return &workflow.StoreError{Err: err}
		}

		ecn = &models.ECN{
			ID:          ecnID,
			OrgID:       orgID,
			ECNNumber:   ecnNumber,
			ECOID:       ecoID,
			Title:       eco.Title,
			Description: description,
			Status:      models.ECNStatusPendingApproval,
			SubmitterID: userID,
			AssigneeID:  &assigneeID,
			Disposition: disposition,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
		}

		if _, err := insertRevision(ctx, tx, models.EntityTypeECN, ecnID, userID, nil, ecn.Snapshot(), nil, now); err != nil {
			return &workflow.StoreError{Err: err}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	dao.Logger.WithFields(logrus.Fields{
		"ecn_id":     ecn.ID,
		"ecn_number": ecn.ECNNumber,
		"eco_id":     ecoID,
	}).Info("ECO promoted successfully")

	return ecn, nil
}

// collectAffectedItems joins the affected products/documents of the ECRs
// bundled into an ECO into one summary line
func collectAffectedItems(ctx context.Context, q querier, ecoID int64) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT affected_products, affected_documents
		FROM change.ecrs
		WHERE eco_id = $1
		ORDER BY id`, ecoID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var products, documents sql.NullString
		if err := rows.Scan(&products, &documents); err != nil {
			return "", err
		}
		if products.Valid && products.String != "" {
			items = append(items, products.String)
		}
		if documents.Valid && documents.String != "" {
			items = append(items, documents.String)
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(items) == 0 {
		return "", nil
	}
	return "Affected items: " + strings.Join(items, "; "), nil
}

// dedupeIDs drops repeated ids, keeping first-seen order
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// TransitionStatus applies a caller-requested status change to an ECR, ECO or
// ECN. The legality check, the update with its stamped timestamps and the
// revision all commit together.
func (dao *EngineDao) TransitionStatus(ctx context.Context, entityType string, orgID, entityID, userID int64, req *models.StatusChangeRequest) (interface{}, error) {
	if req == nil || strings.TrimSpace(req.Status) == "" {
		return nil, &workflow.ValidationError{Message: "status is required"}
	}

	dao.Logger.WithFields(logrus.Fields{
		"entity_type": entityType,
		"entity_id":   entityID,
		"org_id":      orgID,
		"target":      req.Status,
	}).Info("Starting status transition")

	switch entityType {
	case models.EntityTypeECR:
		return dao.transitionECR(ctx, orgID, entityID, userID, req)
	case models.EntityTypeECO:
		return dao.transitionECO(ctx, orgID, entityID, userID, req)
	case models.EntityTypeECN:
		return dao.transitionECN(ctx, orgID, entityID, userID, req)
	default:
		return nil, &workflow.ValidationError{Message: fmt.Sprintf("unknown entity type: %s", entityType)}
	}
}

func (dao *EngineDao) transitionECR(ctx context.Context, orgID, ecrID, userID int64, req *models.StatusChangeRequest) (*models.ECR, error) {
	now := time.Now()
	var result *models.ECR

	err := dao.runTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+ecrColumns+`
			FROM change.ecrs e
			WHERE e.id = $1 AND e.org_id = $2
			FOR UPDATE`, ecrID, orgID)

		ecr, err := scanECR(row)
		if err == sql.ErrNoRows {
			return &workflow.NotFoundError{Message: "ECR not found"}
		}
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		if err := workflow.ValidateUserTransition(models.EntityTypeECR, ecr.Status, req.Status); err != nil {
			return err
		}

		previous := ecr.Snapshot()
		stamps := workflow.TimestampColumns(models.EntityTypeECR, req.Status, now)

		setClauses := []string{"status = $1", "updated_at = $2"}
		args := []interface{}{req.Status, now}
		argIndex := 3
		for column, at := range stamps {
			setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIndex))
			args = append(args, at)
			argIndex++
		}
		// An approval records who approved
		if req.Status == models.ECRStatusApproved {
			setClauses = append(setClauses, fmt.Sprintf("approver_id = $%d", argIndex))
			args = append(args, userID)
			argIndex++
		}
		args = append(args, ecrID)

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE change.ecrs SET %s WHERE id = $%d`,
			strings.Join(setClauses, ", "), argIndex), args...)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		ecr.Status = req.Status
		ecr.UpdatedAt = now
		if at, ok := stamps["submitted_at"]; ok {
			ecr.SubmittedAt = &at
		}
		if at, ok := stamps["approved_at"]; ok {
			ecr.ApprovedAt = &at
		}
		if req.Status == models.ECRStatusApproved {
			ecr.ApproverID = &userID
		}

		if _, err := insertRevision(ctx, tx, models.EntityTypeECR, ecrID, userID, previous, ecr.Snapshot(), req.Note, now); err != nil {
			return &workflow.StoreError{Err: err}
		}

		result = ecr
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (dao *EngineDao) transitionECO(ctx context.Context, orgID, ecoID, userID int64, req *models.StatusChangeRequest) (*models.ECO, error) {
	now := time.Now()
	var result *models.ECO

	err := dao.runTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+ecoColumns+`
			FROM change.ecos o
			WHERE o.id = $1 AND o.org_id = $2
			FOR UPDATE`, ecoID, orgID)

		eco, err := scanECO(row)
		if err == sql.ErrNoRows {
			return &workflow.NotFoundError{Message: "ECO not found"}
		}
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		if err := workflow.ValidateUserTransition(models.EntityTypeECO, eco.Status, req.Status); err != nil {
			return err
		}

		previous := eco.Snapshot()
		stamps := workflow.TimestampColumns(models.EntityTypeECO, req.Status, now)

		setClauses := []string{"status = $1", "updated_at = $2"}
		args := []interface{}{req.Status, now}
		argIndex := 3
		for column, at := range stamps {
			setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIndex))
			args = append(args, at)
			argIndex++
		}
		args = append(args, ecoID)

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE change.ecos SET %s WHERE id = $%d`,
			strings.Join(setClauses, ", "), argIndex), args...)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		eco.Status = req.Status
		eco.UpdatedAt = now
		if at, ok := stamps["completed_at"]; ok {
			eco.CompletedAt = &at
		}

		if _, err := insertRevision(ctx, tx, models.EntityTypeECO, ecoID, userID, previous, eco.Snapshot(), req.Note, now); err != nil {
			return &workflow.StoreError{Err: err}
		}

		result = eco
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (dao *EngineDao) transitionECN(ctx context.Context, orgID, ecnID, userID int64, req *models.StatusChangeRequest) (*models.ECN, error) {
	now := time.Now()
	var result *models.ECN

	err := dao.runTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+ecnColumns+`
			FROM change.ecns n
			WHERE n.id = $1 AND n.org_id = $2
			FOR UPDATE`, ecnID, orgID)

		ecn, err := scanECN(row)
		if err == sql.ErrNoRows {
			return &workflow.NotFoundError{Message: "ECN not found"}
		}
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		if err := workflow.ValidateUserTransition(models.EntityTypeECN, ecn.Status, req.Status); err != nil {
			return err
		}

		previous := ecn.Snapshot()
		stamps := workflow.TimestampColumns(models.EntityTypeECN, req.Status, now)

		setClauses := []string{"status = $1", "updated_at = $2"}
		args := []interface{}{req.Status, now}
		argIndex := 3
		for column, at := range stamps {
			setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIndex))
			args = append(args, at)
			argIndex++
		}
		args = append(args, ecnID)

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE change.ecns SET %s WHERE id = $%d`,
			strings.Join(setClauses, ", "), argIndex), args...)
		if err != nil {
			return &workflow.StoreError{Err: err}
		}

		ecn.Status = req.Status
		ecn.UpdatedAt = now
		if at, ok := stamps["distributed_at"]; ok {
			ecn.DistributedAt = &at
		}
		if at, ok := stamps["effective_date"]; ok {
			ecn.EffectiveDate = &at
		}

		if _, err := insertRevision(ctx, tx, models.EntityTypeECN, ecnID, userID, previous, ecn.Snapshot(), req.Note, now); err != nil {
			return &workflow.StoreError{Err: err}
		}

		result = ecn
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
