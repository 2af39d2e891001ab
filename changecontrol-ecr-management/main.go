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
	"changecontrol/lib/workflow"

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
	ecrRepository      data.ECRRepository
	engineRepository   data.EngineRepository
	revisionRepository data.RevisionRepository
	userRepository     data.UserRepository
	orgRepository      data.OrganizationRepository
)

func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "Handler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("ECR management request received")

	// Extract claims from JWT token via API Gateway authorizer
	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}

	switch request.HTTPMethod {
	case http.MethodPost:
		// POST /ecrs - Create new ECR in DRAFT
		if request.Resource == "/ecrs" {
			return handleCreateECR(ctx, claims.UserID, claims.OrgID, request.Body), nil
		}

		// POST /ecrs/{ecrId}/attachments - Register attachment and get upload URL
		if strings.Contains(request.Resource, "/ecrs/{ecrId}/attachments") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleAddAttachment(ctx, ecrID, claims.UserID, claims.OrgID, request.Body), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodGet:
		// GET /ecrs - List ECRs for the organization
		if request.Resource == "/ecrs" {
			return handleGetECRs(ctx, claims.OrgID, request.QueryStringParameters), nil
		}

		// GET /ecrs/{ecrId}/attachments - List attachments with download URLs
		if strings.Contains(request.Resource, "/ecrs/{ecrId}/attachments") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleGetAttachments(ctx, ecrID, claims.OrgID), nil
		}

		// GET /ecrs/{ecrId}/revisions - Revision history, newest first
		if strings.Contains(request.Resource, "/ecrs/{ecrId}/revisions") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleGetRevisions(ctx, ecrID, claims.OrgID), nil
		}

		// GET /ecrs/{ecrId} - Get specific ECR
		if strings.Contains(request.Resource, "/ecrs/{ecrId}") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleGetECR(ctx, ecrID, claims.OrgID), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	case http.MethodPut:
		// PUT /ecrs/{ecrId}/status - Transition ECR status
		if strings.Contains(request.Resource, "/ecrs/{ecrId}/status") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleStatusChange(ctx, ecrID, claims.UserID, claims.OrgID, request.Body), nil
		}

		// PUT /ecrs/{ecrId} - Update ECR fields
		if strings.Contains(request.Resource, "/ecrs/{ecrId}") {
			ecrID, err := strconv.ParseInt(request.PathParameters["ecrId"], 10, 64)
			if err != nil {
				return api.ErrorResponse(http.StatusBadRequest, "Invalid ECR ID", logger), nil
			}
			return handleUpdateECR(ctx, ecrID, claims.UserID, claims.OrgID, request.Body), nil
		}
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil

	default:
		return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
	}
}

// handleCreateECR handles POST /ecrs
func handleCreateECR(ctx context.Context, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var createReq models.CreateECRRequest
	if err := json.Unmarshal([]byte(body), &createReq); err != nil {
		logger.WithError(err).Error("Failed to parse create ECR request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if err := validateCreateECR(&createReq); err != nil {
		return api.ErrorResponseFor(err, logger)
	}

	// Tenant must still exist; stale tokens can outlive an organization
	if _, err := orgRepository.GetOrganization(ctx, orgID); err != nil {
		return api.ErrorResponseFor(err, logger)
	}

	// Assignee must belong to the caller's organization
	if createReq.AssigneeID != nil {
		if _, err := userRepository.GetUser(ctx, orgID, *createReq.AssigneeID); err != nil {
			return api.ErrorResponseFor(err, logger)
		}
	}

	ecr, err := ecrRepository.CreateECR(ctx, orgID, userID, &createReq)
	if err != nil {
		logger.WithError(err).Error("Failed to create ECR")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusCreated, ecr, logger)
}

func validateCreateECR(req *models.CreateECRRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return &workflow.ValidationError{Message: "title is required"}
	}
	if strings.TrimSpace(req.Description) == "" {
		return &workflow.ValidationError{Message: "description is required"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return &workflow.ValidationError{Message: "reason is required"}
	}
	switch req.Urgency {
	case models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyCritical:
		return nil
	default:
		return &workflow.ValidationError{Message: "urgency must be one of LOW, MEDIUM, HIGH, CRITICAL"}
	}
}

// handleGetECRs handles GET /ecrs with optional status, urgency and assignee_id filters
func handleGetECRs(ctx context.Context, orgID int64, filters map[string]string) events.APIGatewayProxyResponse {
	ecrs, err := ecrRepository.GetECRsByOrg(ctx, orgID, filters)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECRs")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"ecrs":  ecrs,
		"total": len(ecrs),
	}, logger)
}

// handleGetECR handles GET /ecrs/{ecrId}
func handleGetECR(ctx context.Context, ecrID, orgID int64) events.APIGatewayProxyResponse {
	ecr, err := ecrRepository.GetECR(ctx, orgID, ecrID)
	if err != nil {
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, ecr, logger)
}

// handleUpdateECR handles PUT /ecrs/{ecrId}
func handleUpdateECR(ctx context.Context, ecrID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var updateReq models.UpdateECRRequest
	if err := json.Unmarshal([]byte(body), &updateReq); err != nil {
		logger.WithError(err).Error("Failed to parse update ECR request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if updateReq.Urgency != "" {
		switch updateReq.Urgency {
		case models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyCritical:
		default:
			return api.ErrorResponse(http.StatusBadRequest, "Invalid urgency value", logger)
		}
	}

	if updateReq.AssigneeID != nil {
		if _, err := userRepository.GetUser(ctx, orgID, *updateReq.AssigneeID); err != nil {
			return api.ErrorResponseFor(err, logger)
		}
	}

	ecr, err := ecrRepository.UpdateECR(ctx, orgID, ecrID, userID, &updateReq)
	if err != nil {
		logger.WithError(err).Error("Failed to update ECR")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, ecr, logger)
}

// handleStatusChange handles PUT /ecrs/{ecrId}/status
func handleStatusChange(ctx context.Context, ecrID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var statusReq models.StatusChangeRequest
	if err := json.Unmarshal([]byte(body), &statusReq); err != nil {
		logger.WithError(err).Error("Failed to parse status change request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if statusReq.Status == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Status is required", logger)
	}

	ecr, err := engineRepository.TransitionStatus(ctx, models.EntityTypeECR, orgID, ecrID, userID, &statusReq)
	if err != nil {
		logger.WithError(err).Error("Failed to change ECR status")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, ecr, logger)
}

// handleAddAttachment handles POST /ecrs/{ecrId}/attachments
func handleAddAttachment(ctx context.Context, ecrID, userID, orgID int64, body string) events.APIGatewayProxyResponse {
	var attachReq models.CreateECRAttachmentRequest
	if err := json.Unmarshal([]byte(body), &attachReq); err != nil {
		logger.WithError(err).Error("Failed to parse attachment request")
		return api.ErrorResponse(http.StatusBadRequest, "Invalid request body", logger)
	}

	if strings.TrimSpace(attachReq.FileName) == "" {
		return api.ErrorResponse(http.StatusBadRequest, "File name is required", logger)
	}

	attachment, err := ecrRepository.AddECRAttachment(ctx, orgID, ecrID, userID, &attachReq)
	if err != nil {
		logger.WithError(err).Error("Failed to add ECR attachment")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusCreated, attachment, logger)
}

// handleGetAttachments handles GET /ecrs/{ecrId}/attachments
func handleGetAttachments(ctx context.Context, ecrID, orgID int64) events.APIGatewayProxyResponse {
	attachments, err := ecrRepository.GetECRAttachments(ctx, orgID, ecrID)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECR attachments")
		return api.ErrorResponseFor(err, logger)
	}

	return api.SuccessResponse(http.StatusOK, map[string]interface{}{
		"attachments": attachments,
		"total":       len(attachments),
	}, logger)
}

// handleGetRevisions handles GET /ecrs/{ecrId}/revisions
func handleGetRevisions(ctx context.Context, ecrID, orgID int64) events.APIGatewayProxyResponse {
	revisions, err := revisionRepository.GetRevisions(ctx, orgID, models.EntityTypeECR, ecrID)
	if err != nil {
		logger.WithError(err).Error("Failed to get ECR revisions")
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

	logger.WithField("operation", "init").Info("ECR Management Lambda initialization completed successfully")
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

	bucket := ssmParams[constants.ATTACHMENT_BUCKET]
	s3Client := clients.NewS3Client(isLocal, bucket)

	sequences := data.NewSequenceDao(logger)
	ecrRepository = data.NewECRDao(sqlDB, sequences, s3Client, bucket, logger)
	engineRepository = data.NewEngineDao(sqlDB, sequences, logger)
	revisionRepository = data.NewRevisionDao(sqlDB, logger)
	userRepository = data.NewUserDao(sqlDB, logger)
	orgRepository = data.NewOrganizationDao(sqlDB, logger)

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
