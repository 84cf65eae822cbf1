package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
    App         AppConfig         `mapstructure:"app"`
    Database    DatabaseConfig    `mapstructure:"database"`
    Redis       RedisConfig       `mapstructure:"redis"`
    Assignment  AssignmentConfig  `mapstructure:"assignment"`
    Ingress     IngressConfig     `mapstructure:"ingress"`
    Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
    Security    SecurityConfig    `mapstructure:"security"`
    Performance PerformanceConfig `mapstructure:"performance"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
    Name        string `mapstructure:"name"`
    Version     string `mapstructure:"version"`
    Environment string `mapstructure:"environment"`
    Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
    Driver          string        `mapstructure:"driver"`
    Host            string        `mapstructure:"host"`
    Port            int           `mapstructure:"port"`
    Username        string        `mapstructure:"username"`
    Password        string        `mapstructure:"password"`
    Database        string        `mapstructure:"database"`
    MaxOpenConns    int           `mapstructure:"max_open_conns"`
    MaxIdleConns    int           `mapstructure:"max_idle_conns"`
    ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
    RetryAttempts   int           `mapstructure:"retry_attempts"`
    RetryDelay      time.Duration `mapstructure:"retry_delay"`
    Charset         string        `mapstructure:"charset"`
}

// RedisConfig holds Redis configuration, shared by the candidate-list cache
// and the assignment event broadcaster.
type RedisConfig struct {
    Host         string        `mapstructure:"host"`
    Port         int           `mapstructure:"port"`
    Password     string        `mapstructure:"password"`
    DB           int           `mapstructure:"db"`
    PoolSize     int           `mapstructure:"pool_size"`
    MinIdleConns int           `mapstructure:"min_idle_conns"`
    MaxRetries   int           `mapstructure:"max_retries"`
    DialTimeout  time.Duration `mapstructure:"dial_timeout"`
    ReadTimeout  time.Duration `mapstructure:"read_timeout"`
    WriteTimeout time.Duration `mapstructure:"write_timeout"`

    BroadcastChannel  string        `mapstructure:"broadcast_channel"`
    ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
    PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
}

// AssignmentConfig holds the business calendar and retry behavior the
// assignment engine runs against.
type AssignmentConfig struct {
    BusinessTimezone string        `mapstructure:"business_timezone"`
    TransactionRetry int           `mapstructure:"transaction_retry"`
    RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
}

// IngressConfig holds lead-webhook server configuration.
type IngressConfig struct {
    ListenAddress string `mapstructure:"listen_address"`
    SharedSecret  string `mapstructure:"shared_secret"`
    HeaderName    string `mapstructure:"header_name"`
}

// MonitoringConfig holds monitoring and observability configuration.
type MonitoringConfig struct {
    Metrics MetricsConfig `mapstructure:"metrics"`
    Health  HealthConfig  `mapstructure:"health"`
    Logging LoggingConfig `mapstructure:"logging"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
    Enabled bool `mapstructure:"enabled"`
    Port    int  `mapstructure:"port"`
}

// HealthConfig holds health check configuration.
type HealthConfig struct {
    Enabled bool `mapstructure:"enabled"`
    Port    int  `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
    Level  string        `mapstructure:"level"`
    Format string        `mapstructure:"format"`
    Output string        `mapstructure:"output"`
    File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig holds file-based logging configuration.
type FileLogConfig struct {
    Enabled    bool   `mapstructure:"enabled"`
    Path       string `mapstructure:"path"`
    MaxSize    int    `mapstructure:"max_size"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAge     int    `mapstructure:"max_age"`
    Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
    TLS TLSConfig `mapstructure:"tls"`
    API APIConfig `mapstructure:"api"`
}

// TLSConfig holds TLS configuration.
type TLSConfig struct {
    Enabled  bool   `mapstructure:"enabled"`
    CertFile string `mapstructure:"cert_file"`
    KeyFile  string `mapstructure:"key_file"`
}

// APIConfig holds ops-CLI/admin API configuration.
type APIConfig struct {
    Enabled     bool `mapstructure:"enabled"`
    Port        int  `mapstructure:"port"`
    CORSEnabled bool `mapstructure:"cors_enabled"`
}

// PerformanceConfig holds performance tuning configuration.
type PerformanceConfig struct {
    WorkerPoolSize int `mapstructure:"worker_pool_size"`
    QueueSize      int `mapstructure:"queue_size"`
}

// Load loads configuration from file and environment.
func Load(configFile string) (*Config, error) {
    if configFile != "" {
        viper.SetConfigFile(configFile)
    } else {
        viper.SetConfigName("config")
        viper.SetConfigType("yaml")
        viper.AddConfigPath("./configs")
        viper.AddConfigPath("/etc/lead-router-core")
        viper.AddConfigPath(".")
    }

    viper.SetEnvPrefix("LEADROUTER")
    viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    viper.AutomaticEnv()

    setDefaults()

    if err := viper.ReadInConfig(); err != nil {
        if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
            return nil, fmt.Errorf("failed to read config file: %w", err)
        }
    }

    var config Config
    if err := viper.Unmarshal(&config); err != nil {
        return nil, fmt.Errorf("failed to unmarshal config: %w", err)
    }

    if err := config.Validate(); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return &config, nil
}

func setDefaults() {
    viper.SetDefault("app.name", "lead-router-core")
    viper.SetDefault("app.version", "1.0.0")
    viper.SetDefault("app.environment", "development")
    viper.SetDefault("app.debug", false)

    viper.SetDefault("database.driver", "mysql")
    viper.SetDefault("database.host", "localhost")
    viper.SetDefault("database.port", 3306)
    viper.SetDefault("database.username", "leadrouter")
    viper.SetDefault("database.password", "leadrouter")
    viper.SetDefault("database.database", "lead_router")
    viper.SetDefault("database.max_open_conns", 25)
    viper.SetDefault("database.max_idle_conns", 5)
    viper.SetDefault("database.conn_max_lifetime", "5m")
    viper.SetDefault("database.retry_attempts", 3)
    viper.SetDefault("database.retry_delay", "500ms")
    viper.SetDefault("database.charset", "utf8mb4")

    viper.SetDefault("redis.host", "localhost")
    viper.SetDefault("redis.port", 6379)
    viper.SetDefault("redis.db", 0)
    viper.SetDefault("redis.pool_size", 10)
    viper.SetDefault("redis.min_idle_conns", 5)
    viper.SetDefault("redis.max_retries", 3)
    viper.SetDefault("redis.dial_timeout", "5s")
    viper.SetDefault("redis.read_timeout", "3s")
    viper.SetDefault("redis.write_timeout", "3s")
    viper.SetDefault("redis.broadcast_channel", "lead-assignments")
    viper.SetDefault("redis.reconnect_interval", "5s")
    viper.SetDefault("redis.publish_timeout", "2s")

    viper.SetDefault("assignment.business_timezone", "UTC")
    viper.SetDefault("assignment.transaction_retry", 3)
    viper.SetDefault("assignment.retry_backoff", "50ms")

    viper.SetDefault("ingress.listen_address", "0.0.0.0:8090")
    viper.SetDefault("ingress.header_name", "X-Webhook-Secret")

    viper.SetDefault("monitoring.metrics.enabled", true)
    viper.SetDefault("monitoring.metrics.port", 9090)
    viper.SetDefault("monitoring.health.enabled", true)
    viper.SetDefault("monitoring.health.port", 8080)
    viper.SetDefault("monitoring.logging.level", "info")
    viper.SetDefault("monitoring.logging.format", "json")
    viper.SetDefault("monitoring.logging.output", "stdout")

    viper.SetDefault("security.tls.enabled", false)
    viper.SetDefault("security.api.enabled", true)
    viper.SetDefault("security.api.port", 8081)
    viper.SetDefault("security.api.cors_enabled", true)

    viper.SetDefault("performance.worker_pool_size", 50)
    viper.SetDefault("performance.queue_size", 500)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
    if c.Database.Host == "" {
        return fmt.Errorf("database host is required")
    }
    if c.Database.Port <= 0 || c.Database.Port > 65535 {
        return fmt.Errorf("invalid database port: %d", c.Database.Port)
    }
    if c.Database.Username == "" {
        return fmt.Errorf("database username is required")
    }
    if c.Database.Database == "" {
        return fmt.Errorf("database name is required")
    }

    if c.Redis.Host != "" {
        if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
            return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
        }
    }

    if c.Assignment.BusinessTimezone == "" {
        return fmt.Errorf("assignment business_timezone is required")
    }
    if c.Assignment.TransactionRetry < 0 {
        return fmt.Errorf("assignment transaction_retry must not be negative")
    }

    if c.Monitoring.Metrics.Enabled {
        if c.Monitoring.Metrics.Port <= 0 || c.Monitoring.Metrics.Port > 65535 {
            return fmt.Errorf("invalid metrics port: %d", c.Monitoring.Metrics.Port)
        }
    }
    if c.Monitoring.Health.Enabled {
        if c.Monitoring.Health.Port <= 0 || c.Monitoring.Health.Port > 65535 {
            return fmt.Errorf("invalid health port: %d", c.Monitoring.Health.Port)
        }
    }

    if c.Security.API.Enabled {
        if c.Security.API.Port <= 0 || c.Security.API.Port > 65535 {
            return fmt.Errorf("invalid api port: %d", c.Security.API.Port)
        }
    }

    if c.Performance.WorkerPoolSize <= 0 {
        return fmt.Errorf("worker pool size must be positive")
    }
    if c.Performance.QueueSize <= 0 {
        return fmt.Errorf("queue size must be positive")
    }

    return nil
}

// GetDSN returns the database connection string.
func (c *DatabaseConfig) GetDSN() string {
    charset := c.Charset
    if charset == "" {
        charset = "utf8mb4"
    }

    return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=Local",
        c.Username,
        c.Password,
        c.Host,
        c.Port,
        c.Database,
        charset,
    )
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
    return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production environment.
func (c *AppConfig) IsProduction() bool {
    return strings.ToLower(c.Environment) == "production"
}

// IsDevelopment returns true if running in development environment.
func (c *AppConfig) IsDevelopment() bool {
    return strings.ToLower(c.Environment) == "development"
}
