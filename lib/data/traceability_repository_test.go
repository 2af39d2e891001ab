package data

import (
	"context"
	"regexp"
	"testing"
	"time"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func traceabilityDao(t *testing.T) (TraceabilityRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	dao := NewTraceabilityDao(db, logrus.New())
	return dao, mock, func() { db.Close() }
}

func searchColumns() []string {
	return []string{"id", "number", "title", "status", "created_at", "user_id", "submitter_name"}
}

func ecrSearchColumns() []string {
	return []string{"id", "number", "title", "status", "created_at", "eco_id", "user_id", "submitter_name"}
}

func Test_SearchTraceability_EmptyQueryRejected(t *testing.T) {
	//Arrange
	dao, _, closeDB := traceabilityDao(t)
	defer closeDB()

	//Act
	_, err := dao.SearchTraceability(context.Background(), 10, "   ")

	//Assert
	var validationErr *workflow.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// A single matching ECR that has been bundled and promoted surfaces its whole
// chain: the ECR, its ECO and the ECO's ECN each become a node of their own.
func Test_SearchTraceability_ECRMatchExpandsChain(t *testing.T) {
	//Arrange
	dao, mock, closeDB := traceabilityDao(t)
	defer closeDB()
	ecrCreated := time.Now().Add(-72 * time.Hour)
	ecoCreated := time.Now().Add(-48 * time.Hour)
	ecnCreated := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()).
			AddRow(int64(1), "ECR-24-003", "Widget Assembly Fix", "CONVERTED", ecrCreated, int64(500), int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(searchColumns()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(500), "ECO-24-001", "Widget rollup", "COMPLETED", ecoCreated, int64(99), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(1), "ECR-24-003", "Widget Assembly Fix", "CONVERTED", ecrCreated, int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(900), "ECN-24-001", "Widget rollup", "DISTRIBUTED", ecnCreated, int64(99), "Grace Hopper"))

	//Act
	result, err := dao.SearchTraceability(context.Background(), 10, "widget")

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, "widget", result.Query)
	assert.Equal(t, 3, result.TotalResults)

	ecnNode := result.Chains[0]
	assert.Equal(t, models.EntityTypeECN, ecnNode.EntityType)
	assert.Equal(t, "ECN-24-001", ecnNode.Number)
	assert.Equal(t, "ECO-24-001", ecnNode.ParentECO.Number)
	assert.Len(t, ecnNode.LinkedECRs, 1)
	assert.Equal(t, "ECR-24-003", ecnNode.LinkedECRs[0].Number)

	ecoNode := result.Chains[1]
	assert.Equal(t, models.EntityTypeECO, ecoNode.EntityType)
	assert.Equal(t, "ECO-24-001", ecoNode.Number)
	assert.Len(t, ecoNode.LinkedECRs, 1)
	assert.Len(t, ecoNode.ChildECNs, 1)

	ecrNode := result.Chains[2]
	assert.Equal(t, models.EntityTypeECR, ecrNode.EntityType)
	assert.Equal(t, "ECR-24-003", ecrNode.Number)
	assert.Equal(t, "Ada Lovelace", ecrNode.Submitter.Name)
	assert.Equal(t, "ECO-24-001", ecrNode.ChildECO.Number)
	assert.Len(t, ecrNode.ChildECNs, 1)
	assert.Equal(t, "ECN-24-001", ecrNode.ChildECNs[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// When both a chain member and its ECO match the query text, the chain is
// expanded once and the duplicate match is dropped.
func Test_SearchTraceability_DeduplicatesAcrossMatches(t *testing.T) {
	//Arrange
	dao, mock, closeDB := traceabilityDao(t)
	defer closeDB()
	ecrCreated := time.Now().Add(-24 * time.Hour)
	ecoCreated := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.org_id")).
		WithArgs(int64(10), "%connector%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()).
			AddRow(int64(1), "ECR-24-003", "Connector redesign", "CONVERTED", ecrCreated, int64(500), int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.org_id")).
		WithArgs(int64(10), "%connector%").
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(500), "ECO-24-001", "Connector rollup", "IN_PROGRESS", ecoCreated, int64(99), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.org_id")).
		WithArgs(int64(10), "%connector%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(500), "ECO-24-001", "Connector rollup", "IN_PROGRESS", ecoCreated, int64(99), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(1), "ECR-24-003", "Connector redesign", "CONVERTED", ecrCreated, int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()))

	//Act
	result, err := dao.SearchTraceability(context.Background(), 10, "connector")

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, 2, result.TotalResults)
	assert.Equal(t, "ECO-24-001", result.Chains[0].Number)
	assert.Equal(t, "ECR-24-003", result.Chains[1].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SearchTraceability_UnbundledECRSortsWithChainNodes(t *testing.T) {
	//Arrange
	dao, mock, closeDB := traceabilityDao(t)
	defer closeDB()
	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()).
			AddRow(int64(1), "ECR-24-001", "Widget base", "DRAFT", older, nil, int64(50), "Ada Lovelace"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(500), "ECO-24-002", "Widget rollup", "BACKLOG", newer, int64(99), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.org_id")).
		WithArgs(int64(10), "%widget%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()).
			AddRow(int64(500), "ECO-24-002", "Widget rollup", "BACKLOG", newer, int64(99), "Grace Hopper"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.eco_id")).
		WithArgs(int64(500)).
		WillReturnRows(sqlmock.NewRows(searchColumns()))

	//Act
	result, err := dao.SearchTraceability(context.Background(), 10, "widget")

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, 2, result.TotalResults)
	assert.Equal(t, "ECO-24-002", result.Chains[0].Number)
	assert.Equal(t, "ECR-24-001", result.Chains[1].Number)
	assert.Nil(t, result.Chains[1].ChildECO)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SearchTraceability_NoMatches(t *testing.T) {
	//Arrange
	dao, mock, closeDB := traceabilityDao(t)
	defer closeDB()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.org_id")).
		WithArgs(int64(10), "%nothing%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.org_id")).
		WithArgs(int64(10), "%nothing%").
		WillReturnRows(sqlmock.NewRows(searchColumns()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE n.org_id")).
		WithArgs(int64(10), "%nothing%").
		WillReturnRows(sqlmock.NewRows(ecrSearchColumns()))

	//Act
	result, err := dao.SearchTraceability(context.Background(), 10, "nothing")

	//Assert
	assert.NoError(t, err)
	assert.Equal(t, 0, result.TotalResults)
	assert.Empty(t, result.Chains)
	assert.NoError(t, mock.ExpectationsWereMet())
}
