// Package api exposes the dependency graph service over HTTP. Responses use
// a uniform envelope; domain errors map to stable codes and HTTP statuses.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/db"
	"depgraph.evalgo.org/deps"
	"depgraph.evalgo.org/security"
)

// Handlers bundles the dependencies of the HTTP layer.
type Handlers struct {
	Service *deps.Service
	JWT     *security.JWTService
	DB      *db.PostgresDB
}

// Response is the envelope every endpoint returns.
type Response struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorPayload carries the stable error code and message of a failed
// request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func okMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func fail(c echo.Context, err error) error {
	if de, isDomain := deps.AsDomainError(err); isDomain {
		return c.JSON(statusForCode(de.Code), Response{
			Success:   false,
			Error:     &ErrorPayload{Code: de.Code, Message: de.Message},
			Timestamp: time.Now().UTC(),
		})
	}

	common.Logger.WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, Response{
		Success:   false,
		Error:     &ErrorPayload{Code: deps.CodeInternalError, Message: "internal error"},
		Timestamp: time.Now().UTC(),
	})
}

// statusForCode maps the stable error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case deps.CodeMissingRequiredFields, deps.CodeInvalidRequest, deps.CodeWorkItemsNotFound:
		return http.StatusBadRequest
	case deps.CodeDependencyNotFound:
		return http.StatusNotFound
	case deps.CodeDuplicateDependency, deps.CodeCycleDetected:
		return http.StatusConflict
	case deps.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Health reports liveness. When a database is wired it also verifies the
// pool with a bounded ping.
func (h *Handlers) Health(c echo.Context) error {
	status := "ok"
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Pool().Ping(ctx); err != nil {
			common.Logger.WithError(err).Warn("health check database ping failed")
			status = "degraded"
		}
	}
	return ok(c, http.StatusOK, map[string]string{"status": status})
}

// TokenRequest is the payload for the token endpoint.
type TokenRequest struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles,omitempty"`
	Email    string   `json:"email,omitempty"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken issues a bearer token for development and integration
// setups. Production deployments front this service with an identity
// provider and disable the endpoint by leaving the secret empty.
func (h *Handlers) GenerateToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, deps.ErrInvalidRequest("malformed request body"))
	}
	if req.UserID == "" || req.TenantID == "" {
		return fail(c, deps.ErrMissingFields("user_id", "tenant_id"))
	}

	token, err := h.JWT.GenerateToken(common.Principal{
		ID:       req.UserID,
		TenantID: req.TenantID,
		Roles:    req.Roles,
		Email:    req.Email,
	}, 24*time.Hour)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, http.StatusOK, TokenResponse{Token: token})
}

// CreateDependency creates a dependency edge.
func (h *Handlers) CreateDependency(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	var in deps.CreateEdgeInput
	if err := c.Bind(&in); err != nil {
		return fail(c, deps.ErrInvalidRequest("malformed request body"))
	}

	edge, err := h.Service.CreateEdge(c.Request().Context(), principal, in)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, edge)
}

// GetDependency returns one edge by id.
func (h *Handlers) GetDependency(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	edge, err := h.Service.GetEdge(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, edge)
}

// ListDependencies returns the tenant's edges, optionally filtered by the
// work_item_id query parameter to edges touching that item.
func (h *Handlers) ListDependencies(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	edges, err := h.Service.ListEdges(c.Request().Context(), principal, c.QueryParam("work_item_id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, map[string]interface{}{
		"dependencies": edges,
		"count":        len(edges),
	})
}

// UpdateDependency applies a partial update to an edge.
func (h *Handlers) UpdateDependency(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	var patch deps.UpdateEdgePatch
	if err := c.Bind(&patch); err != nil {
		return fail(c, deps.ErrInvalidRequest("malformed request body"))
	}

	edge, err := h.Service.UpdateEdge(c.Request().Context(), principal, c.Param("id"), patch)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, edge)
}

// DeleteDependency removes an edge.
func (h *Handlers) DeleteDependency(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	id := c.Param("id")
	if err := h.Service.DeleteEdge(c.Request().Context(), principal, id); err != nil {
		return fail(c, err)
	}
	return okMessage(c, http.StatusOK, "dependency "+id+" deleted")
}

// GetGraph returns the tenant's dependency graph, optionally restricted to
// the comma separated work_item_ids query parameter.
func (h *Handlers) GetGraph(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	var ids []string
	if raw := c.QueryParam("work_item_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	g, err := h.Service.Graph(c.Request().Context(), principal, ids)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, g)
}

// GetCriticalPath recomputes and returns the tenant's critical path
// analysis.
func (h *Handlers) GetCriticalPath(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	analysis, err := h.Service.CriticalPath(c.Request().Context(), principal)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, analysis)
}

// GetCycles runs whole-graph cycle detection for the tenant.
func (h *Handlers) GetCycles(c echo.Context) error {
	principal, err := principalFromContext(c)
	if err != nil {
		return fail(c, err)
	}

	result, err := h.Service.Cycles(c.Request().Context(), principal)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, result)
}
