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
	ecoRepository      data.ECORepository
	engineRepository   data.EngineRepository
	revisionRepository data.RevisionRepository
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("ECO management request received")

	// Extract claims from JWT token via API Gateway authorizer
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}

	switch request.HTTPMethod {
	case http.MethodPost:
		// POST /ecos/bundle - Bundle approved ECRs into a new ECO
		if request.Resource == "/ecos/bundle" {
			return handleBundleECRs(ctx, claims.UserID, claims.OrgID, request.Body), nil
		}

		// POST /ecos/{ecoId}/promote - Promote completed ECO to an ECN
		if strings.Contains(request.Resource, "/ecos/{ecoId}/promote") {
			ecoID, err := strconv.ParseInt(request.PathParameters["ecoId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECO ID", logger), nil
			}
			return handlePromoteECO(ctx, ecoID, claims.UserID, claims.OrgID), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodGet:
		// GET /ecos - List ECOs for the organization
		if request.Resource == "/ecos" {
			return handleGetECOs(ctx, claims.OrgID, request.QueryStringParameters), nil
		}

		// GET /ecos/{ecoId}/revisions - Revision history, newest first
		if strings.Contains(request.Resource, "/ecos/{ecoId}/revisions") {
			ecoID, err := strconv.ParseInt(request.PathParameters["ecoId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECO ID", logger), nil
			}
			return handleGetRevisions(ctx, ecoID, claims.OrgID), nil
		}

		// GET /ecos/{ecoId} - Get specific ECO
		if strings.Contains(request.Resource, "/ecos/{ecoId}") {
			ecoID, err := strconv.ParseInt(request.PathParameters["ecoId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECO ID", logger), nil
			}
			return handleGetECO(ctx, ecoID, claims.OrgID), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodPut:
		// PUT /ecos/{ecoId}/status - Transition ECO status
		if strings.Contains(request.Resource, "/ecos/{ecoId}/status") {
			ecoID, err := strconv.ParseInt(request.PathParameters["ecoId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECO ID", logger), nil
			}
			return handleStatusChange(ctx, ecoID, claims.UserID, claims.OrgID, request.Body), nil
		}

		// PUT /ecos/{ecoId} - Update ECO fields
		if strings.Contains(request.Resource, "/ecos/{ecoId}") {
			ecoID, err := strconv.ParseInt(request.PathParameters["ecoId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECO ID", logger), nil
			}
			return handleUpdateECO(ctx, ecoID, claims.UserID, claims.OrgID, request.Body), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// handleBundleECRs handles POST /ecos/bundle
func handleBundleECRs(ctx context.Context, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var bundleReq models.BundleECRsRequest
	if err := json.Unmarshal([]byte(body), &bundleReq); err != nil {
		logger.WithError(err).Error("Failed to parse bundle request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	result, err := engineRepository.BundleECRs(ctx, orgID, userID, &bundleReq)
	if err != nil {
		logger.WithError(err).Error("Failed to bundle ECRs")
		return api.ErrorResponseFor(err, logger)
	}

	logger.WithFields(logrus.Fields{
		"operation":  "handleBundleECRs",
		"eco_number": result.ECO.ECONumber,
		"ecr_count":  len(result.UpdatedECRs),
	}).Info("ECRs bundled into new ECO")

	return api.SuccessResponse(http.StatusCreated, result, logger)
}

// handlePromoteECO handles POST /ecos/{ecoId}/promote
func handlePromoteECO(ctx context.Context, ecoID, userID, orgID int64) events.APIGatewayProxyResponse {
	ecn, err := engineRepository.PromoteECOToECN(ctx, orgID, userID, ecoID)
	if err != nil {
		logger.WithError(err).Error("Failed to promote ECO")
		return api.ErrorResponseFor(err, logger)
	}

	logger.WithFields(logrus.Fields{
		"operation":  "handlePromoteECO",
		"eco_id":     ecoID,
		"ecn_number": ecn.ECNNumber,
	}).Info("ECO promoted to ECN")

	return api.SuccessResponse(http.StatusCreated, ecn, logger)
}

// handleGetECOs handles GET /ecos with optional status, priority and assignee_id filters
func handleGetECOs(ctx context.Context, orgID int64, filters map[string]string) events.APIGatewayProxyResponse {
	ecos, err := ecoRepository.GetECOsByOrg(ctx, orgID, filters)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECOs")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"ecos":  ecos,
		"total": len(ecos),
	}, logger)
}

// handleGetECO handles GET /ecos/{ecoId}
func handleGetECO(ctx context.Context, ecoID, orgID int64) events.APIGatewayProxyResponse {
	eco, err := ecoRepository.GetECO(ctx, orgID, ecoID)
	if err != nil {
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, eco, logger)
}

// handleUpdateECO handles PUT /ecos/{ecoId}
func handleUpdateECO(ctx context.Context, ecoID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var updateReq models.UpdateECORequest
	if err := json.Unmarshal([]byte(body), &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update ECO request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	eco, err := ecoRepository.UpdateECO(ctx, orgID, ecoID, userID, &updateReq)
	if err != nil {
		logger.WithError(err).Error("Failed to update ECO")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, eco, logger)
}

// handleStatusChange handles PUT /ecos/{ecoId}/status
func handleStatusChange(ctx context.Context, ecoID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var statusReq models.StatusChangeRequest
	if err := json.Unmarshal([]byte(body), &statusReq); err != nil {
		logger.WithError(err).Error("Failed to parse status change request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if statusReq.Status == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Status is required", logger)
	}

	eco, err := engineRepository.TransitionStatus(ctx, models.EntityTypeECO, orgID, ecoID, userID, &statusReq)
	if err != nil {
		logger.WithError(err).Error("Failed to change ECO status")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, eco, logger)
}

// handleGetRevisions handles GET /ecos/{ecoId}/revisions
func handleGetRevisions(ctx context.Context, ecoID, orgID int64) events.APIGatewayProxyResponse {
	revisions, err := revisionRepository.GetRevisions(ctx, orgID, models.EntityTypeECO, ecoID)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECO revisions")
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

	logger.WithField("operation", "init").Info("ECO Management Lambda initialization completed successfully")
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
	ecoRepository = data.NewECODao(sqlDB, logger)
	engineRepository = data.NewEngineDao(sqlDB, sequences, logger)
	revisionRepository = data.NewRevisionDao(sqlDB, logger)

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
