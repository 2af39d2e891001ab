package auth

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Claims represents the identity extracted from the API Gateway authorizer context.
// Token issuance and validation happen upstream; by the time a request reaches a
// handler the authorizer has already vetted it.
type Claims struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Subject string `json:"sub"`
	OrgID   int64  `json:"org_id"`
	Role    string `json:"role"`
}

// ExtractClaimsFromRequest extracts and parses claims from an API Gateway request
func ExtractClaimsFromRequest(request events.APIGatewayProxyRequest) (*Claims, error) {
	var claimsMap map[string]interface{}
	var ok bool

	// Try different possible claim locations in the authorizer context
	if authClaims, exists := request.RequestContext.Authorizer["claims"]; exists {
		claimsMap, ok = authClaims.(map[string]interface{})
	}

	// If claims not found, try direct access to authorizer (some API Gateway configurations)
	if !ok {
		claimsMap = request.RequestContext.Authorizer
		ok = (claimsMap != nil)
	}

	if !ok || claimsMap == nil {
		return nil, fmt.Errorf("claims not found in authorizer context")
	}

	userID, err := parseInt64Claim(claimsMap, "user_id")
	if err != nil {
		return nil, err
	}

	orgID, err := parseInt64Claim(claimsMap, "org_id")
	if err != nil {
		return nil, err
	}

	email, ok := claimsMap["email"].(string)
	if !ok {
		return nil, fmt.Errorf("email not found or invalid in claims")
	}

	subject, ok := claimsMap["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("sub not found or invalid in claims")
	}

	// Role is optional in the authorizer context; handlers that need it check for empty
	role, _ := claimsMap["role"].(string)

	return &Claims{
		UserID:  userID,
		Email:   email,
		Subject: subject,
		OrgID:   orgID,
		Role:    role,
	}, nil
}

// parseInt64Claim reads a numeric claim that may arrive as a string or a JSON number
func parseInt64Claim(claimsMap map[string]interface{}, name string) (int64, error) {
	value, exists := claimsMap[name]
	if !exists {
		return 0, fmt.Errorf("%s not found in claims", name)
	}

	if str, ok := value.(string); ok {
		parsed, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s string: %w", name, err)
		}
		return parsed, nil
	}

	// JSON numbers are parsed as float64
	if f, ok := value.(float64); ok {
		return int64(f), nil
	}

	return 0, fmt.Errorf("%s has unexpected type", name)
}

// ToJSON converts claims to JSON string for logging
func (c *Claims) ToJSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}
