package security

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"depgraph.evalgo.org/common"
)

// Claim names carried in issued tokens alongside the registered subject.
const (
	ClaimTenantID = "tenant_id"
	ClaimRoles    = "roles"
	ClaimEmail    = "email"
)

type JWTService struct {
	secret []byte
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
	}
}

// GenerateToken issues a signed token for the principal. The subject is the
// user id; tenant, roles and email ride as private claims.
func (j *JWTService) GenerateToken(principal common.Principal, expiration time.Duration) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Subject(principal.ID).
		IssuedAt(now).
		Expiration(now.Add(expiration)).
		Claim(ClaimTenantID, principal.TenantID).
		Claim(ClaimRoles, principal.Roles).
		Claim(ClaimEmail, principal.Email).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

func (j *JWTService) ValidateToken(tokenString string) (jwt.Token, error) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return token, nil
}

// PrincipalFromToken extracts the authenticated principal from a validated
// token. Tokens without a tenant claim are rejected; every request must be
// tenant scoped.
func PrincipalFromToken(token jwt.Token) (common.Principal, error) {
	principal := common.Principal{ID: token.Subject()}

	tenantID, ok := token.Get(ClaimTenantID)
	if !ok {
		return common.Principal{}, fmt.Errorf("token has no %s claim", ClaimTenantID)
	}
	principal.TenantID, ok = tenantID.(string)
	if !ok || principal.TenantID == "" {
		return common.Principal{}, fmt.Errorf("token has invalid %s claim", ClaimTenantID)
	}

	if raw, ok := token.Get(ClaimRoles); ok {
		switch roles := raw.(type) {
		case []string:
			principal.Roles = roles
		case []interface{}:
			for _, r := range roles {
				if s, ok := r.(string); ok {
					principal.Roles = append(principal.Roles, s)
				}
			}
		}
	}

	if raw, ok := token.Get(ClaimEmail); ok {
		if email, ok := raw.(string); ok {
			principal.Email = email
		}
	}

	return principal, nil
}
