// Package cli wires the dependency graph service together: configuration,
// logging, the PostgreSQL store, the RabbitMQ event bus and the HTTP
// server, with graceful shutdown on SIGINT and SIGTERM.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"depgraph.evalgo.org/api"
	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/config"
	"depgraph.evalgo.org/db"
	"depgraph.evalgo.org/deps"
	"depgraph.evalgo.org/queue"
	"depgraph.evalgo.org/security"
)

// cfgFile holds the path given via --config; empty means the standard
// search paths (., ./configs, /etc/depgraph).
var cfgFile string

var loader = config.NewLoader("DEPGRAPH")

// RootCmd starts the dependency graph service.
var RootCmd = &cobra.Command{
	Use:   "depgraph",
	Short: "work item dependency graph service",
	Long: `Dependency graph service for work items.

Manages dependency edges between work items with cycle prevention,
computes the critical path over a tenant's graph and publishes mutation
events to RabbitMQ. Work items themselves are owned by an upstream
service; this service only reads them.

Configuration is loaded from a YAML file, DEPGRAPH_ environment
variables and command-line flags, in increasing precedence.`,
	Run: runServer,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/depgraph)")
	RootCmd.PersistentFlags().Int("port", 0, "HTTP listen port")
	RootCmd.PersistentFlags().String("db-host", "", "PostgreSQL host")
	RootCmd.PersistentFlags().String("rabbitmq-url", "", "RabbitMQ connection URL")
	RootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	loader.BindFlag("server.port", RootCmd.PersistentFlags().Lookup("port"))
	loader.BindFlag("database.host", RootCmd.PersistentFlags().Lookup("db-host"))
	loader.BindFlag("rabbitmq.url", RootCmd.PersistentFlags().Lookup("rabbitmq-url"))
	loader.BindFlag("security.jwt_secret", RootCmd.PersistentFlags().Lookup("jwt-secret"))
	loader.BindFlag("logging.level", RootCmd.PersistentFlags().Lookup("log-level"))
}

func runServer(cmd *cobra.Command, args []string) {
	loader.SetDefaults()

	cfg := &config.Config{}
	if err := loader.Load(cfgFile, cfg); err != nil {
		common.Logger.WithError(err).Fatal("failed to load configuration")
	}
	if err := config.ValidateConfig(cfg); err != nil {
		common.Logger.WithError(err).Fatal("invalid configuration")
	}

	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	database, err := db.NewPostgresDB(ctx, cfg.Database)
	if err != nil {
		common.Logger.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		common.Logger.WithError(err).Fatal("failed to ensure database schema")
	}

	bus, err := queue.NewEventBus(cfg.RabbitMQ)
	if err != nil {
		common.Logger.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer bus.Close()

	service := deps.NewService(db.NewEdgeStore(database), bus)
	jwtService := security.NewJWTService(cfg.Security.JWTSecret)

	e := echo.New()
	api.SetupRoutes(e, &api.Handlers{
		Service: service,
		JWT:     jwtService,
		DB:      database,
	}, cfg)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		common.Logger.WithField("address", address).Info("server starting")
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			common.Logger.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	common.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		common.Logger.WithError(err).Error("server shutdown failed")
	}
}
