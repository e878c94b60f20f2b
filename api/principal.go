package api

import (
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/deps"
	"depgraph.evalgo.org/security"
)

// principalContextKey is where the JWT middleware stores the parsed token.
const principalContextKey = "user"

// principalFromContext extracts the authenticated principal placed in the
// request context by the JWT middleware.
func principalFromContext(c echo.Context) (common.Principal, error) {
	token, isToken := c.Get(principalContextKey).(jwt.Token)
	if !isToken {
		return common.Principal{}, deps.ErrInvalidRequest("request is not authenticated")
	}

	principal, err := security.PrincipalFromToken(token)
	if err != nil {
		return common.Principal{}, deps.ErrInvalidRequest(err.Error())
	}
	return principal, nil
}
