package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so repository helpers can
// run standalone or inside a caller-owned transaction
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SequenceRepository hands out the next human-readable number for a
// (organization, entity type, year) scope
type SequenceRepository interface {
	NextNumber(ctx context.Context, q querier, orgID int64, entityType string, year int) (string, error)
}

// SequenceDao implements SequenceRepository on a dedicated counter table.
// Each (org, type, year) scope owns one row; the upsert takes a row lock, so
// concurrent allocations for the same scope serialize and the RETURNING value
// is unique. Because the bump runs on the caller's transaction, a rollback
// also rolls the counter back and no gap is ever introduced.
type SequenceDao struct {
	Logger *logrus.Logger
}

// NewSequenceDao creates a new instance of SequenceDao
func NewSequenceDao(logger *logrus.Logger) SequenceRepository {
	return &SequenceDao{Logger: logger}
}

const nextSequenceQuery = `
	INSERT INTO change.sequence_counters (org_id, entity_type, year, last_value)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (org_id, entity_type, year)
	DO UPDATE SET last_value = sequence_counters.last_value + 1
	RETURNING last_value`

// NextNumber allocates the next number in the scope and formats it as
// <TYPE>-<yy>-<NNN>. It must be called on the same transaction as the insert
// that consumes the number.
func (dao *SequenceDao) NextNumber(ctx context.Context, q querier, orgID int64, entityType string, year int) (string, error) {
	var lastValue int64
	err := q.QueryRowContext(ctx, nextSequenceQuery, orgID, entityType, year).Scan(&lastValue)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"org_id":      orgID,
			"entity_type": entityType,
			"year":        year,
		}).Error("Failed to allocate sequence number")
		return "", fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	number := FormatNumber(entityType, year, lastValue)

	dao.Logger.WithFields(logrus.Fields{
		"org_id":      orgID,
		"entity_type": entityType,
		"number":      number,
	}).Debug("Allocated sequence number")

	return number, nil
}

// FormatNumber renders the canonical year-scoped number format, e.g. ECO-25-001
func FormatNumber(entityType string, year int, sequence int64) string {
	return fmt.Sprintf("%s-%02d-%03d", entityType, year%100, sequence)
}

// IsRetryableStoreError reports whether an error is transient lock contention
// worth a single retry: serialization failure, deadlock, or lock-not-available.
func IsRetryableStoreError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
