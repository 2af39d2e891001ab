package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"changecontrol/lib/workflow"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// ParseJSONBody unmarshals a request body into the given target
func ParseJSONBody(body string, target interface{}) error {
	return json.Unmarshal([]byte(body), target)
}

// SuccessResponse creates a successful API Gateway response
func SuccessResponse(statusCode int, data interface{}, logger *logrus.Logger) events.APIGatewayProxyResponse {
	body, err := json.Marshal(data)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal response data")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type":                 "application/json",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
			"Access-Control-Allow-Methods": "GET,POST,PUT,DELETE,OPTIONS",
		},
	}
}

// ErrorResponse creates an error API Gateway response
func ErrorResponse(statusCode int, message string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	errorData := map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	}

	body, err := json.Marshal(errorData)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal error response")
		body = []byte(`{"error":true,"message":"Internal server error","status":500}`)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type":                 "application/json",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
			"Access-Control-Allow-Methods": "GET,POST,PUT,DELETE,OPTIONS",
		},
	}
}

// ErrorResponseFor maps a workflow error to the matching API Gateway response.
// The taxonomy distinguishes caller mistakes (400), precondition failures (422),
// uniqueness conflicts (409), missing/foreign entities (404) and store failures
// (500, safely retryable).
func ErrorResponseFor(err error, logger *logrus.Logger) events.APIGatewayProxyResponse {
	var validationErr *workflow.ValidationError
	var notEligibleErr *workflow.NotEligibleError
	var conflictErr *workflow.ConflictError
	var notFoundErr *workflow.NotFoundError
	var invalidTransitionErr *workflow.InvalidTransitionError
	var storeErr *workflow.StoreError

	switch {
	case errors.As(err, &validationErr):
		return ErrorResponse(http.StatusBadRequest, validationErr.Error(), logger)
	case errors.As(err, &notEligibleErr):
		return ErrorResponse(http.StatusUnprocessableEntity, notEligibleErr.Error(), logger)
	case errors.As(err, &conflictErr):
		return ErrorResponse(http.StatusConflict, conflictErr.Error(), logger)
	case errors.As(err, &notFoundErr):
		return ErrorResponse(http.StatusNotFound, notFoundErr.Error(), logger)
	case errors.As(err, &invalidTransitionErr):
		return ErrorResponse(http.StatusUnprocessableEntity, invalidTransitionErr.Error(), logger)
	case errors.As(err, &storeErr):
		return ErrorResponse(http.StatusInternalServerError, storeErr.Error(), logger)
	default:
		return ErrorResponse(http.StatusInternalServerError, err.Error(), logger)
	}
}
