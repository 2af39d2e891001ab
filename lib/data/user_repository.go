package data

import (
	"context"
	"database/sql"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/sirupsen/logrus"
)

// UserRepository reads user records scoped to an organization
type UserRepository interface {
	GetUser(ctx context.Context, orgID, userID int64) (*models.User, error)
}

// UserDao implements UserRepository
type UserDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewUserDao creates a new instance of UserDao
func NewUserDao(db *sql.DB, logger *logrus.Logger) UserRepository {
	return &UserDao{DB: db, Logger: logger}
}

// GetUser returns the user only when it belongs to the given organization.
// A user from another organization is reported as not found.
func (dao *UserDao) GetUser(ctx context.Context, orgID, userID int64) (*models.User, error) {
	var user models.User
	err := dao.DB.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, role, org_id, created_at, updated_at
		FROM iam.users
		WHERE id = $1 AND org_id = $2`, userID, orgID).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email,
		&user.Role, &user.OrgID, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &workflow.NotFoundError{Message: "user not found in organization"}
	}
	if err != nil {
		dao.Logger.WithFields(logrus.Fields{
			"org_id":  orgID,
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to get user")
		return nil, &workflow.StoreError{Err: err}
	}

	return &user, nil
}
