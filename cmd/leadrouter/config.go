package main

import (
    "context"
    "fmt"

    "github.com/hamzaKhattat/lead-router-core/internal/assignment"
    "github.com/hamzaKhattat/lead-router-core/internal/calendar"
    "github.com/hamzaKhattat/lead-router-core/internal/callerstore"
    "github.com/hamzaKhattat/lead-router-core/internal/config"
    "github.com/hamzaKhattat/lead-router-core/internal/counter"
    "github.com/hamzaKhattat/lead-router-core/internal/db"
    "github.com/hamzaKhattat/lead-router-core/internal/events"
    "github.com/hamzaKhattat/lead-router-core/internal/fairness"
    "github.com/hamzaKhattat/lead-router-core/internal/health"
    "github.com/hamzaKhattat/lead-router-core/internal/metrics"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// initializeForCLI wires up everything the ops commands need: config,
// logging, database, cache and an engine talking straight to MySQL. No
// webhook, no broadcaster, no metrics/health servers — those only run in
// server mode.
func initializeForCLI(ctx context.Context) error {
    cfg, err := config.Load(configFile)
    if err != nil {
        return fmt.Errorf("failed to load config: %w", err)
    }
    appConfig = cfg

    logConfig := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: "text",
        Output: "stdout",
    }
    if err := logger.Init(logConfig); err != nil {
        return fmt.Errorf("failed to initialize logger: %w", err)
    }

    if err := initializeDatabase(ctx, cfg); err != nil {
        return fmt.Errorf("failed to initialize database: %w", err)
    }

    engine = buildEngine(cfg, nil)
    return nil
}

// initializeForServer wires up the full server-mode dependency graph,
// including the event broadcaster and the metrics/health services.
func initializeForServer(ctx context.Context) error {
    cfg, err := config.Load(configFile)
    if err != nil {
        return fmt.Errorf("failed to load config: %w", err)
    }
    appConfig = cfg

    logConfig := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: cfg.Monitoring.Logging.Format,
        Output: cfg.Monitoring.Logging.Output,
        File: logger.FileConfig{
            Enabled:    cfg.Monitoring.Logging.File.Enabled,
            Path:       cfg.Monitoring.Logging.File.Path,
            MaxSize:    cfg.Monitoring.Logging.File.MaxSize,
            MaxBackups: cfg.Monitoring.Logging.File.MaxBackups,
            MaxAge:     cfg.Monitoring.Logging.File.MaxAge,
            Compress:   cfg.Monitoring.Logging.File.Compress,
        },
    }
    if err := logger.Init(logConfig); err != nil {
        return fmt.Errorf("failed to initialize logger: %w", err)
    }

    if err := initializeDatabase(ctx, cfg); err != nil {
        return fmt.Errorf("failed to initialize database: %w", err)
    }

    var sink assignment.EventSink
    broadcaster, err = events.New(ctx, events.Config{
        Addr:              cfg.Redis.GetRedisAddr(),
        Password:          cfg.Redis.Password,
        DB:                cfg.Redis.DB,
        Channel:           cfg.Redis.BroadcastChannel,
        ReconnectInterval: cfg.Redis.ReconnectInterval,
        PublishTimeout:    cfg.Redis.PublishTimeout,
    })
    if err != nil {
        logger.WithError(err).Warn("assignment event broadcaster unavailable, events will not be published")
    } else {
        sink = broadcaster
    }

    metricsSvc = metrics.New()
    engine = buildEngine(cfg, sink)

    if cfg.Monitoring.Health.Enabled {
        healthSvc = health.NewHealthService(cfg.Monitoring.Health.Port)

        healthSvc.RegisterLivenessCheck("database", health.CheckFunc(func(ctx context.Context) error {
            if !database.IsHealthy() {
                return fmt.Errorf("database not healthy")
            }
            return database.PingContext(ctx)
        }))
        healthSvc.RegisterReadinessCheck("database", health.CheckFunc(func(ctx context.Context) error {
            return database.PingContext(ctx)
        }))
        if broadcaster != nil {
            healthSvc.RegisterReadinessCheck("broadcaster", health.CheckFunc(func(ctx context.Context) error {
                if !broadcaster.IsConnected() {
                    return fmt.Errorf("broadcaster not connected")
                }
                return nil
            }))
        }

        go healthSvc.Start()
    }

    if cfg.Monitoring.Metrics.Enabled {
        go metricsSvc.ServeHTTP(cfg.Monitoring.Metrics.Port)
    }

    return nil
}

func initializeDatabase(ctx context.Context, cfg *config.Config) error {
    dbConfig := db.Config{
        Driver:          cfg.Database.Driver,
        Host:            cfg.Database.Host,
        Port:            cfg.Database.Port,
        Username:        cfg.Database.Username,
        Password:        cfg.Database.Password,
        Database:        cfg.Database.Database,
        MaxOpenConns:    cfg.Database.MaxOpenConns,
        MaxIdleConns:    cfg.Database.MaxIdleConns,
        ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
        RetryAttempts:   cfg.Database.RetryAttempts,
        RetryDelay:      cfg.Database.RetryDelay,
    }

    if err := db.Initialize(dbConfig); err != nil {
        return err
    }
    database = db.GetDB()

    cacheConfig := db.CacheConfig{
        Host:         cfg.Redis.Host,
        Port:         cfg.Redis.Port,
        Password:     cfg.Redis.Password,
        DB:           cfg.Redis.DB,
        PoolSize:     cfg.Redis.PoolSize,
        MinIdleConns: cfg.Redis.MinIdleConns,
        MaxRetries:   cfg.Redis.MaxRetries,
    }
    if err := db.InitializeCache(cacheConfig, "leadrouter"); err != nil {
        logger.WithError(err).Warn("failed to initialize redis cache, candidate reads will always hit mysql")
    }
    cache = db.GetCache()

    return nil
}

func buildEngine(cfg *config.Config, sink assignment.EventSink) *assignment.Engine {
    repo := callerstore.NewCachedRepository(callerstore.NewMySQLCallerRepository(database), cache)
    clock, err := calendar.NewFixedZoneClock(cfg.Assignment.BusinessTimezone)
    if err != nil {
        logger.WithError(err).Warn("invalid business_timezone, falling back to UTC")
        clock, _ = calendar.NewFixedZoneClock("UTC")
    }

    opts := []assignment.Option{}
    if sink != nil {
        opts = append(opts, assignment.WithEventSink(sink))
    }
    if metricsSvc != nil {
        opts = append(opts, assignment.WithMetrics(metricsSvc))
    }

    return assignment.New(database, repo, fairness.NewMySQLStore(database), counter.NewMySQLStore(database), clock, opts...)
}
