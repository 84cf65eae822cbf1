// Command leadrouter is both the lead-ingestion server and the operator's
// CLI for the assignment engine: pass -server (or any server flag) to run
// the long-lived process, otherwise it dispatches to a cobra command tree.
package main

import (
    "context"
    "flag"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/lead-router-core/internal/assignment"
    "github.com/hamzaKhattat/lead-router-core/internal/config"
    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/internal/events"
    "github.com/hamzaKhattat/lead-router-core/internal/health"
    "github.com/hamzaKhattat/lead-router-core/internal/ingress"
    "github.com/hamzaKhattat/lead-router-core/internal/metrics"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

var (
    configFile string
    initDB     bool
    dropDB     bool
    serverMode bool

    appConfig  *config.Config
    database   *db.DB
    cache      *db.Cache
    broadcaster *events.Broadcaster
    engine     *assignment.Engine
    metricsSvc *metrics.Metrics
    healthSvc  *health.HealthService
)

func main() {
    flag.StringVar(&configFile, "config", "", "Path to configuration file")
    flag.BoolVar(&initDB, "init-db", false, "Initialize database schema and exit")
    flag.BoolVar(&dropDB, "drop-db", false, "Drop all tables before initializing (use with -init-db)")
    flag.BoolVar(&serverMode, "server", false, "Run the ingestion server")
    flag.Parse()

    if initDB || serverMode {
        if err := runServerMode(); err != nil {
            fmt.Fprintln(os.Stderr, "error:", err)
            os.Exit(1)
        }
        return
    }

    if err := runCLI(); err != nil {
        fmt.Fprintln(os.Stderr, "error:", err)
        os.Exit(1)
    }
}

func runServerMode() error {
    ctx := context.Background()

    if err := initializeForServer(ctx); err != nil {
        return err
    }

    if initDB {
        logger.Info("initializing database schema...")
        if err := db.InitializeDatabase(ctx, database.DB, dropDB); err != nil {
            return fmt.Errorf("schema initialization failed: %w", err)
        }
        logger.Info("database schema initialized")
        if !serverMode {
            return nil
        }
    }

    webhook := ingress.NewServer(ingress.Config{
        ListenAddress: appConfig.Ingress.ListenAddress,
        SharedSecret:  appConfig.Ingress.SharedSecret,
        HeaderName:    appConfig.Ingress.HeaderName,
    }, engine)

    go func() {
        if err := webhook.Start(); err != nil && err != http.ErrServerClosed {
            logger.WithError(err).Fatal("ingestion webhook failed")
        }
    }()

    logger.Info("lead router started")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    <-sigCh

    logger.Info("shutting down...")

    if err := webhook.Stop(); err != nil {
        logger.WithError(err).Warn("webhook shutdown error")
    }
    if broadcaster != nil {
        broadcaster.Close()
    }
    if healthSvc != nil {
        healthSvc.Stop()
    }

    logger.Info("shutdown complete")
    return nil
}

func runCLI() error {
    root := &cobra.Command{
        Use:   "leadrouter",
        Short: "Operator CLI for the lead assignment engine",
    }

    root.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")

    root.AddCommand(
        createStatsCommand(),
        createCallersCommand(),
        createLeadsCommand(),
        createAssignCommand(),
    )

    return root.Execute()
}
