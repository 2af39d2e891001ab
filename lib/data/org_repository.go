package data

import (
	"context"
	"database/sql"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/sirupsen/logrus"
)

// OrganizationRepository reads organization records
type OrganizationRepository interface {
	GetOrganization(ctx context.Context, orgID int64) (*models.Organization, error)
}

// OrganizationDao implements OrganizationRepository
type OrganizationDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewOrganizationDao creates a new instance of OrganizationDao
func NewOrganizationDao(db *sql.DB, logger *logrus.Logger) OrganizationRepository {
	return &OrganizationDao{DB: db, Logger: logger}
}

// GetOrganization returns the organization or a NotFoundError when it does not exist
func (dao *OrganizationDao) GetOrganization(ctx context.Context, orgID int64) (*models.Organization, error) {
	var org models.Organization
	err := dao.DB.QueryRowContext(ctx, `
		SELECT id, org_name, domain, created_at, updated_at
		FROM iam.organizations
		WHERE id = $1`, orgID).Scan(
		&org.OrgID, &org.OrgName, &org.Domain, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "organization not found"}
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"org_id": orgID,
			"error":  err.Error(),
		}).Error("Failed to get organization")
		return nil, &workflow.StoreError{Err: err}
	}

	return &org, nil
}
