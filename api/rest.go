package api

import (
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"depgraph.evalgo.org/config"
	"depgraph.evalgo.org/deps"
)

// SetupRoutes wires the HTTP surface onto an echo instance. The health and
// token endpoints are public; everything under /api requires a bearer
// token.
func SetupRoutes(e *echo.Echo, h *Handlers, cfg *config.Config) {
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}))
	e.Use(rateLimiter(cfg.Security))

	e.GET("/health", h.Health)
	e.POST("/auth/token", h.GenerateToken)

	protected := e.Group("/api")
	protected.Use(echojwt.WithConfig(echojwt.Config{
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return h.JWT.ValidateToken(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, Response{
				Success:   false,
				Error:     &ErrorPayload{Code: "UNAUTHORIZED", Message: "missing or invalid bearer token"},
				Timestamp: time.Now().UTC(),
			})
		},
	}))

	protected.POST("/dependencies", h.CreateDependency)
	protected.GET("/dependencies", h.ListDependencies)
	protected.GET("/dependencies/:id", h.GetDependency)
	protected.PUT("/dependencies/:id", h.UpdateDependency)
	protected.PATCH("/dependencies/:id", h.UpdateDependency)
	protected.DELETE("/dependencies/:id", h.DeleteDependency)
	protected.GET("/graph", h.GetGraph)
	protected.GET("/critical-path", h.GetCriticalPath)
	protected.GET("/cycles", h.GetCycles)
}

// rateLimiter caps requests per client IP over the configured window.
func rateLimiter(cfg config.SecurityConfig) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitMax) / cfg.RateLimitWindow.Seconds())

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     cfg.RateLimitMax,
			ExpiresIn: cfg.RateLimitWindow,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, Response{
				Success:   false,
				Error:     &ErrorPayload{Code: deps.CodeRateLimitExceeded, Message: "rate limit exceeded"},
				Timestamp: time.Now().UTC(),
			})
		},
	})
}
