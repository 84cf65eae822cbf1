package config

import (
    "testing"

    "github.com/spf13/viper"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func validConfig() Config {
    return Config{
        Database: DatabaseConfig{
            Host:     "localhost",
            Port:     3306,
            Username: "leadrouter",
            Database: "lead_router",
        },
        Assignment: AssignmentConfig{
            BusinessTimezone: "UTC",
            TransactionRetry: 3,
        },
        Monitoring: MonitoringConfig{
            Metrics: MetricsConfig{Enabled: true, Port: 9090},
            Health:  HealthConfig{Enabled: true, Port: 8080},
        },
        Security: SecurityConfig{
            API: APIConfig{Enabled: true, Port: 8081},
        },
        Performance: PerformanceConfig{
            WorkerPoolSize: 50,
            QueueSize:      500,
        },
    }
}

func TestConfig_Validate_Valid(t *testing.T) {
    c := validConfig()
    assert.NoError(t, c.Validate())
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
    c := validConfig()
    c.Database.Host = ""
    assert.Error(t, c.Validate())
}

func TestConfig_Validate_BadDatabasePort(t *testing.T) {
    c := validConfig()
    c.Database.Port = 70000
    assert.Error(t, c.Validate())
}

func TestConfig_Validate_MissingBusinessTimezone(t *testing.T) {
    c := validConfig()
    c.Assignment.BusinessTimezone = ""
    assert.Error(t, c.Validate())
}

func TestConfig_Validate_NegativeTransactionRetry(t *testing.T) {
    c := validConfig()
    c.Assignment.TransactionRetry = -1
    assert.Error(t, c.Validate())
}

func TestConfig_Validate_BadMetricsPortWhenEnabled(t *testing.T) {
    c := validConfig()
    c.Monitoring.Metrics.Port = 0
    assert.Error(t, c.Validate())
}

func TestConfig_Validate_MetricsPortIgnoredWhenDisabled(t *testing.T) {
    c := validConfig()
    c.Monitoring.Metrics.Enabled = false
    c.Monitoring.Metrics.Port = 0
    assert.NoError(t, c.Validate())
}

func TestConfig_Validate_NonPositiveWorkerPool(t *testing.T) {
    c := validConfig()
    c.Performance.WorkerPoolSize = 0
    assert.Error(t, c.Validate())
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
    c := DatabaseConfig{
        Username: "leadrouter",
        Password: "secret",
        Host:     "db.internal",
        Port:     3306,
        Database: "lead_router",
    }
    assert.Equal(t, "leadrouter:secret@tcp(db.internal:3306)/lead_router?charset=utf8mb4&parseTime=true&loc=Local", c.GetDSN())
}

func TestAppConfig_EnvironmentHelpers(t *testing.T) {
    prod := AppConfig{Environment: "Production"}
    assert.True(t, prod.IsProduction())
    assert.False(t, prod.IsDevelopment())

    dev := AppConfig{Environment: "development"}
    assert.True(t, dev.IsDevelopment())
    assert.False(t, dev.IsProduction())
}

func TestLoad_AppliesDefaultsWithNoConfigFile(t *testing.T) {
    viper.Reset()
    defer viper.Reset()

    cfg, err := Load("")
    require.NoError(t, err)

    assert.Equal(t, "lead-router-core", cfg.App.Name)
    assert.Equal(t, "mysql", cfg.Database.Driver)
    assert.Equal(t, 3306, cfg.Database.Port)
    assert.Equal(t, "UTC", cfg.Assignment.BusinessTimezone)
    assert.Equal(t, 50, cfg.Performance.WorkerPoolSize)
}
