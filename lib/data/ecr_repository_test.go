package data

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type mockS3Client struct {
	uploadErr error
}

func (m *mockS3Client) GenerateUploadURL(key string, expiry time.Duration) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	return "https://s3.example.com/upload/" + key, nil
}

func (m *mockS3Client) GenerateDownloadURL(key string, expiry time.Duration) (string, error) {
	return "https://s3.example.com/download/" + key, nil
}

func (m *mockS3Client) DeleteObject(key string) error {
	return nil
}

func (m *mockS3Client) ObjectExists(key string) (bool, error) {
	return true, nil
}

func ecrDao(t *testing.T) (ECRRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	logger := logrus.New()
	dao := NewECRDao(db, NewSequenceDao(logger), &mockS3Client{}, "changecontrol-attachments", logger)
	return dao, mock, func() { db.Close() }
}

func Test_CreateECR_Success(t *testing.T) {
	//Arrange
	dao, mock, closeDB := ecrDao(t)
	defer closeDB()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.sequence_counters")).
		WithArgs(int64(10), "ECR", now.Year()).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(5)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.ecrs")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change.revisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("FROM iam.users")).
		WithArgs(int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(50), "Ada Lovelace"))

	req := &models.CreateECRRequest{
		Title:       "Replace connector",
		Description: "Current connector fails under vibration",
		Reason:      "Field returns",
		Urgency:     models.UrgencyHigh,
	}

	//Act
	ecr, err := dao.CreateECR(context.Background(), 10, 50, req)

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, FormatNumber("ECR", now.Year(), 5), ecr.ECRNumber)
	assert.Equal(t, models.ECRStatusDraft, ecr.Status)
	assert.Equal(t, int64(50), ecr.SubmitterID)
	assert.Equal(t, "Ada Lovelace", ecr.Submitter.Name)
	assert.Nil(t, ecr.ECOID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateECR_SequenceFailureRollsBack(t *testing.T) {
	//Arrange
	dao, mock, closeDB := ecrDao(t)
	defer closeDB()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.sequence_counters")).
		WithArgs(int64(10), "ECR", now.Year()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	req := &models.CreateECRRequest{
		Title:       "Replace connector",
		Description: "Desc",
		Reason:      "Reason",
		Urgency:     models.UrgencyLow,
	}

	//Act
	_, err := dao.CreateECR(context.Background(), 10, 50, req)

	//Assert
	var storeErr *workflow.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_GetECR_NotFound(t *testing.T) {
	//Arrange
	dao, mock, closeDB := ecrDao(t)
	defer closeDB()

	mock.ExpectQuery(regexp.QuoteMeta("FROM change.ecrs e")).
		WithArgs(int64(1), int64(10)).
		WillReturnError(sql.ErrNoRows)

	//Act
	_, err := dao.GetECR(context.Background(), 10, 1)

	//Assert
	var notFoundErr *workflow.NotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_GetECRsByOrg_StatusFilter(t *testing.T) {
	//Arrange
	dao, mock, closeDB := ecrDao(t)
	defer closeDB()
	now := time.Now()

	rows := sqlmock.NewRows(ecrRowColumns())
	approvedECRRow(rows, 1, "ECR-24-001", models.UrgencyHigh, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM change.ecrs e")).
		WithArgs(int64(10), models.ECRStatusApproved).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM iam.users")).
		WithArgs(int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM iam.users")).
		WithArgs(int64(60)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(60), "Grace Hopper"))

	//Act
	ecrs, err := dao.GetECRsByOrg(context.Background(), 10, map[string]string{"status": models.ECRStatusApproved})

	//Assert
	assert.NoError(t, err)
	assert.Len(t, ecrs, 1)
	assert.Equal(t, models.ECRStatusApproved, ecrs[0].Status)
	assert.Equal(t, "Grace Hopper", ecrs[0].Approver.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_AddECRAttachment_ReturnsUploadURL(t *testing.T) {
	//Arrange
	dao, mock, closeDB := ecrDao(t)
	defer closeDB()
	now := time.Now()

	ecrRows := sqlmock.NewRows(ecrRowColumns())
	approvedECRRow(ecrRows, 1, "ECR-24-001", models.UrgencyHigh, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM change.ecrs e")).
		WithArgs(int64(1), int64(10)).
		WillReturnRows(ecrRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM iam.users")).
		WithArgs(int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM iam.users")).
		WithArgs(int64(60)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(60), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM change.ecr_attachments a")).
		WithArgs(int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "ecr_id", "file_name", "file_type", "file_size",
			"s3_bucket", "s3_key", "created_at", "created_by",
		}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO change.ecr_attachments")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	fileType := "application/pdf"
	req := &models.CreateECRAttachmentRequest{
		FileName: "drawing.pdf",
		FileType: &fileType,
	}

	//Act
	attachment, err := dao.AddECRAttachment(context.Background(), 10, 1, 99, req)

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, "drawing.pdf", attachment.FileName)
	assert.Equal(t, "changecontrol-attachments", attachment.S3Bucket)
	assert.Contains(t, attachment.S3Key, "ecr-attachments/10/1/")
	assert.Contains(t, attachment.UploadURL, "https://s3.example.com/upload/")
	assert.NoError(t, mock.ExpectationsWereMet())
}
