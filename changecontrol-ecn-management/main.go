package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"changecontrol/lib/api"
	"changecontrol/lib/auth"
	"changecontrol/lib/clients"
	"changecontrol/lib/constants"
	"changecontrol/lib/data"
	"changecontrol/lib/models"
	"changecontrol/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger             *logrus.Logger
	isLocal            bool
	ssmRepository      data.SSMRepository
	ssmParams          map[string]string
	sqlDB              *sql.DB
	ecnRepository      data.ECNRepository
	engineRepository   data.EngineRepository
	revisionRepository data.RevisionRepository
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("ECN management request received")

	// Extract claims from JWT token via API Gateway authorizer
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}

	switch request.HTTPMethod {
	case http.MethodGet:
		// GET /ecns - List ECNs for the organization
		if request.Resource == "/ecns" {
			return handleGetECNs(ctx, claims.OrgID, request.QueryStringParameters), nil
		}

		// GET /ecns/{ecnId}/revisions - Revision history, newest first
		if strings.Contains(request.Resource, "/ecns/{ecnId}/revisions") {
			ecnID, err := strconv.ParseInt(request.PathParameters["ecnId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECN ID", logger), nil
			}
			return handleGetRevisions(ctx, ecnID, claims.OrgID), nil
		}

		// GET /ecns/{ecnId} - Get specific ECN
		if strings.Contains(request.Resource, "/ecns/{ecnId}") {
			ecnID, err := strconv.ParseInt(request.PathParameters["ecnId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECN ID", logger), nil
			}
			return handleGetECN(ctx, ecnID, claims.OrgID), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodPost:
		// POST /ecns/{ecnId}/acknowledge - Record a distribution acknowledgment
		if strings.Contains(request.Resource, "/ecns/{ecnId}/acknowledge") {
			ecnID, err := strconv.ParseInt(request.PathParameters["ecnId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECN ID", logger), nil
			}
			return handleAcknowledge(ctx, ecnID, claims.UserID, claims.OrgID, request.Body), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodPut:
		// PUT /ecns/{ecnId}/status - Transition ECN status
		if strings.Contains(request.Resource, "/ecns/{ecnId}/status") {
			ecnID, err := strconv.ParseInt(request.PathParameters["ecnId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECN ID", logger), nil
			}
			return handleStatusChange(ctx, ecnID, claims.UserID, claims.OrgID, request.Body), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// handleGetECNs handles GET /ecns with optional status filter
func handleGetECNs(ctx context.Context, orgID int64, filters map[string]string) events.APIGatewayProxyResponse {
	ecns, err := ecnRepository.GetECNsByOrg(ctx, orgID, filters)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECNs")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"ecns":  ecns,
		"total": len(ecns),
	}, logger)
}

// handleGetECN handles GET /ecns/{ecnId}
func handleGetECN(ctx context.Context, ecnID, orgID int64) events.APIGatewayProxyResponse {
	ecn, err := ecnRepository.GetECN(ctx, orgID, ecnID)
	if err != nil {
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, ecn, logger)
}

// handleStatusChange handles PUT /ecns/{ecnId}/status
func handleStatusChange(ctx context.Context, ecnID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var statusReq models.StatusChangeRequest
	if err := json.Unmarshal([]byte(body), &statusReq); err != nil {
		logger.WithError(err).Error("Failed to parse status change request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if statusReq.Status == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Status is required", logger)
	}

	ecn, err := engineRepository.TransitionStatus(ctx, models.EntityTypeECN, orgID, ecnID, userID, &statusReq)
	if err != nil {
		logger.WithError(err).Error("Failed to change ECN status")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, ecn, logger)
}

// handleAcknowledge handles POST /ecns/{ecnId}/acknowledge
func handleAcknowledge(ctx context.Context, ecnID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var ackReq models.AcknowledgeECNRequest
	if body != "" {
		if err := json.Unmarshal([]byte(body), &ackReq); err != nil {
			logger.WithError(err).Error("Failed to parse acknowledge request")
			return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
		}
	}

	ack, err := ecnRepository.AcknowledgeECN(ctx, orgID, ecnID, userID, &ackReq)
	if err != nil {
		logger.WithError(err).Error("Failed to acknowledge ECN")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusCreated, ack, logger)
}

// handleGetRevisions handles GET /ecns/{ecnId}/revisions
func handleGetRevisions(ctx context.Context, ecnID, orgID int64) events.APIGatewayProxyResponse {
	revisions, err := revisionRepository.GetRevisions(ctx, orgID, models.EntityTypeECN, ecnID)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECN revisions")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"revisions": revisions,
		"total":     len(revisions),
	}, logger)
}

// main is the Lambda function entry point
func main() {
	lambda.Start(Handler)
}

func init() {
	var err error

	isLocal = parseIsLocal()

	// Logger Setup
	logger = setupLogger(isLocal)

	// Initialize AWS SSM Parameter Store client
	ssmClient := clients.NewSSMClient(isLocal)
	ssmRepository = &data.SSMDao{
		SSM:    ssmClient,
		Logger: logger,
	}

	// Retrieve all required configuration parameters from SSM
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	logger.WithFields(logrus.Fields{
		"operation":    "init",
		"params_count": len(ssmParams),
	}).Debug("Retrieved SSM parameters")

	// Initialize PostgreSQL database connection
	err = setupPostgresSQLClient(ssmParams)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	logger.WithField("operation", "init").Info("ECN Management Lambda initialization completed successfully")
}

func parseIsLocal() bool {
	isLocal, _ := strconv.ParseBool(os.Getenv("IS_LOCAL"))
	return isLocal
}

func setupLogger(isLocal bool) *logrus.Logger {
	logger := logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
	return logger
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	// Create PostgreSQL client using RDS connection parameters from SSM
	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	sequences := data.NewSequenceDao(logger)
	ecnRepository = data.NewECNDao(sqlDB, logger)
	engineRepository = data.NewEngineDao(sqlDB, sequences, logger)
	revisionRepository = data.NewRevisionDao(sqlDB, logger)

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
