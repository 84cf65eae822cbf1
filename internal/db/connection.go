package db

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "sync"
    "time"

    _ "github.com/go-sql-driver/mysql"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// Config holds the MySQL connection and pool settings the assignment
// engine's transactions run against.
type Config struct {
    Driver          string
    Host            string
    Port            int
    Username        string
    Password        string
    Database        string
    MaxOpenConns    int
    MaxIdleConns    int
    ConnMaxLifetime time.Duration
    RetryAttempts   int
    RetryDelay      time.Duration
}

const healthCheckInterval = 30 * time.Second

// DB wraps *sql.DB with the retry-on-conflict transaction helper every
// mutating assignment-engine call goes through, a background health flag,
// and a statement cache shared by the store packages' hot-path queries.
type DB struct {
    *sql.DB
    cfg   Config
    stmts *StmtCache

    mu     sync.RWMutex
    health bool
}

var (
    instance *DB
    once     sync.Once
)

// Initialize opens the process-wide database connection exactly once;
// subsequent calls are no-ops.
func Initialize(cfg Config) error {
    var err error
    once.Do(func() {
        instance, err = newDB(cfg)
    })
    return err
}

// GetDB returns the process-wide connection. Panics if Initialize hasn't
// run yet, since every caller in this binary is wired up after startup.
func GetDB() *DB {
    if instance == nil {
        panic("database not initialized")
    }
    return instance
}

func newDB(cfg Config) (*DB, error) {
    dsn := buildDSN(cfg)

    conn, err := dialWithRetry(cfg, dsn)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to connect to database")
    }

    conn.SetMaxOpenConns(cfg.MaxOpenConns)
    conn.SetMaxIdleConns(cfg.MaxIdleConns)
    conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

    wrapper := &DB{
        DB:     conn,
        cfg:    cfg,
        stmts:  NewStmtCache(conn),
        health: true,
    }

    go wrapper.watchHealth()

    logger.Info("database connection established")
    return wrapper, nil
}

func buildDSN(cfg Config) string {
    return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&interpolateParams=true",
        cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// dialWithRetry opens the connection and pings it, retrying with linear
// backoff up to cfg.RetryAttempts times. The last error is returned if every
// attempt fails.
func dialWithRetry(cfg Config, dsn string) (*sql.DB, error) {
    var conn *sql.DB
    var err error

    for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
        conn, err = sql.Open(cfg.Driver, dsn)
        if err == nil {
            if err = conn.Ping(); err == nil {
                return conn, nil
            }
        }

        if attempt < cfg.RetryAttempts {
            logger.WithField("attempt", attempt+1).WithError(err).Warn("database connection failed, retrying...")
            time.Sleep(cfg.RetryDelay * time.Duration(attempt+1))
        }
    }

    return nil, err
}

// watchHealth polls the connection on a fixed interval and logs transitions
// between healthy and unhealthy rather than every poll.
func (db *DB) watchHealth() {
    ticker := time.NewTicker(healthCheckInterval)
    defer ticker.Stop()

    for range ticker.C {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        err := db.PingContext(ctx)
        cancel()

        db.mu.Lock()
        wasHealthy := db.health
        db.health = err == nil
        nowHealthy := db.health
        db.mu.Unlock()

        if wasHealthy == nowHealthy {
            continue
        }
        if nowHealthy {
            logger.Info("database connection recovered")
        } else {
            logger.WithError(err).Error("database connection lost")
        }
    }
}

// IsHealthy reports the most recent background ping's result.
func (db *DB) IsHealthy() bool {
    db.mu.RLock()
    defer db.mu.RUnlock()
    return db.health
}

// Prepared returns a cached prepared statement for query, preparing and
// caching it on first use. Store packages use this for their fixed
// lock/read/write queries rather than re-parsing the same SQL text on every
// transaction.
func (db *DB) Prepared(ctx context.Context, query string) (*sql.Stmt, error) {
    return db.stmts.Prepare(ctx, query)
}

// Close releases cached prepared statements before closing the underlying
// connection pool.
func (db *DB) Close() error {
    db.stmts.Close()
    return db.DB.Close()
}

// Transaction runs fn inside a transaction, retrying the whole attempt on
// transient conflicts (lock wait timeouts, deadlocks, dropped connections).
// A fresh transaction is started on every retry; no locks survive a retry.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
    var err error
    for i := 0; i <= db.cfg.RetryAttempts; i++ {
        err = db.transaction(ctx, fn)
        if err == nil {
            return nil
        }

        if !isRetryableError(err) {
            return err
        }

        if i < db.cfg.RetryAttempts {
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(db.cfg.RetryDelay * time.Duration(i+1)):
                logger.WithField("attempt", i+1).WithError(err).Warn("transaction failed, retrying...")
            }
        }
    }

    return errors.Wrap(err, errors.ErrTransientConflict, "transaction failed after retries")
}

func (db *DB) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
    tx, err := db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }

    defer func() {
        if p := recover(); p != nil {
            tx.Rollback()
            panic(p)
        }
    }()

    if err := fn(tx); err != nil {
        tx.Rollback()
        return err
    }

    return tx.Commit()
}

var retryableErrorSubstrings = []string{
    "connection refused",
    "connection reset",
    "broken pipe",
    "timeout",
    "deadlock",
    "try restarting transaction",
    "lock wait timeout",
}

func isRetryableError(err error) bool {
    if err == nil {
        return false
    }

    errStr := strings.ToLower(err.Error())
    for _, substr := range retryableErrorSubstrings {
        if strings.Contains(errStr, substr) {
            return true
        }
    }

    return false
}

// StmtCache memoizes prepared statements against a single *sql.DB. Safe for
// concurrent use: the fast path only takes a read lock, and a second
// goroutine racing to prepare the same query is resolved by a double-check
// under the write lock.
type StmtCache struct {
    mu    sync.RWMutex
    stmts map[string]*sql.Stmt
    db    *sql.DB
}

func NewStmtCache(db *sql.DB) *StmtCache {
    return &StmtCache{
        stmts: make(map[string]*sql.Stmt),
        db:    db,
    }
}

func (c *StmtCache) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
    c.mu.RLock()
    stmt, exists := c.stmts[query]
    c.mu.RUnlock()
    if exists {
        return stmt, nil
    }

    c.mu.Lock()
    defer c.mu.Unlock()

    if stmt, exists := c.stmts[query]; exists {
        return stmt, nil
    }

    stmt, err := c.db.PrepareContext(ctx, query)
    if err != nil {
        return nil, err
    }

    c.stmts[query] = stmt
    return stmt, nil
}

func (c *StmtCache) Close() {
    c.mu.Lock()
    defer c.mu.Unlock()

    for _, stmt := range c.stmts {
        stmt.Close()
    }
    c.stmts = make(map[string]*sql.Stmt)
}
