package data

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func Test_FormatNumber(t *testing.T) {
	//Arrange
	cases := []struct {
		entityType string
		year       int
		sequence   int64
		expected   string
	}{
		{"ECR", 2024, 1, "ECR-24-001"},
		{"ECO", 2024, 1, "ECO-24-001"},
		{"ECN", 2025, 47, "ECN-25-047"},
		{"ECR", 2024, 1000, "ECR-24-1000"},
	}

	for _, c := range cases {
		//Act
		actual := FormatNumber(c.entityType, c.year, c.sequence)

		//Assert
		assert.Equal(t, c.expected, actual)
	}
}

func Test_NextNumber_FirstInScope(t *testing.T) {
	//Arrange
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.sequence_counters")).
		WithArgs(int64(10), "ECR", 2024).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(1)))

	dao := NewSequenceDao(logrus.New())

	//Act
	number, err := dao.NextNumber(context.Background(), db, 10, "ECR", 2024)

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, "ECR-24-001", number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_NextNumber_IncrementsExistingScope(t *testing.T) {
	//Arrange
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.sequence_counters")).
		WithArgs(int64(10), "ECO", 2024).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(42)))

	dao := NewSequenceDao(logrus.New())

	//Act
	number, err := dao.NextNumber(context.Background(), db, 10, "ECO", 2024)

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, "ECO-24-042", number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_NextNumber_QueryFailure(t *testing.T) {
	//Arrange
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.sequence_counters")).
		WithArgs(int64(10), "ECN", 2024).
		WillReturnError(errors.New("connection reset"))

	dao := NewSequenceDao(logrus.New())

	//Act
	_, err = dao.NextNumber(context.Background(), db, 10, "ECN", 2024)

	//Assert
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to allocate sequence number")
}

func Test_IsRetryableStoreError(t *testing.T) {
	//Assert
	assert.True(t, IsRetryableStoreError(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryableStoreError(&pq.Error{Code: "40P01"}))
	assert.True(t, IsRetryableStoreError(&pq.Error{Code: "55P03"}))
	assert.False(t, IsRetryableStoreError(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryableStoreError(errors.New("plain error")))
	assert.False(t, IsRetryableStoreError(nil))
}
