package db

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// InitializeDatabase creates the schema this system needs, optionally
// dropping everything first. Bootstrapping is idempotent CREATE TABLE IF NOT
// EXISTS rather than a migration runner — the repository is expected to
// manage the six tables below directly (see DESIGN.md for why no migration
// tool is wired in).
func InitializeDatabase(ctx context.Context, conn *sql.DB, dropExisting bool) error {
    log := logger.WithContext(ctx)

    if dropExisting {
        log.Warn("dropping existing tables and data...")
        if err := dropAllTables(ctx, conn); err != nil {
            return fmt.Errorf("failed to drop existing tables: %w", err)
        }
    }

    log.Info("creating database schema...")

    if err := createCoreTables(ctx, conn); err != nil {
        return fmt.Errorf("failed to create core tables: %w", err)
    }

    log.Info("database initialization completed successfully")
    return nil
}

func dropAllTables(ctx context.Context, conn *sql.DB) error {
    if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
        return err
    }

    rows, err := conn.QueryContext(ctx, `
        SELECT table_name
        FROM information_schema.tables
        WHERE table_schema = DATABASE()
    `)
    if err != nil {
        return err
    }
    defer rows.Close()

    var tables []string
    for rows.Next() {
        var tableName string
        if err := rows.Scan(&tableName); err != nil {
            continue
        }
        tables = append(tables, tableName)
    }

    for _, table := range tables {
        if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
            logger.WithContext(ctx).WithError(err).WithField("table", table).Warn("failed to drop table")
        }
    }

    if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
        return err
    }

    return nil
}

func createCoreTables(ctx context.Context, conn *sql.DB) error {
    queries := []string{
        `CREATE TABLE IF NOT EXISTS callers (
            id VARCHAR(36) PRIMARY KEY,
            name VARCHAR(150) NOT NULL,
            role VARCHAR(50),
            daily_limit INT NOT NULL DEFAULT 0,
            status ENUM('active', 'paused') NOT NULL DEFAULT 'active',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            INDEX idx_status (status)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        // Normalized (lowercased, trimmed) assigned-state names per caller.
        // Rows here scope a caller into a state's candidate pool; the global
        // pool always includes every active caller regardless of this table.
        `CREATE TABLE IF NOT EXISTS caller_states (
            caller_id VARCHAR(36) NOT NULL,
            state VARCHAR(100) NOT NULL,
            PRIMARY KEY (caller_id, state),
            FOREIGN KEY (caller_id) REFERENCES callers(id) ON DELETE CASCADE,
            INDEX idx_state (state)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS leads (
            id VARCHAR(36) PRIMARY KEY,
            name VARCHAR(150),
            phone VARCHAR(32) NOT NULL,
            source_timestamp TIMESTAMP NOT NULL,
            lead_source VARCHAR(100),
            city VARCHAR(100),
            state VARCHAR(100),
            metadata JSON,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE KEY uniq_phone_source_ts (phone, source_timestamp)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS assignments (
            id VARCHAR(36) PRIMARY KEY,
            lead_id VARCHAR(36) NOT NULL,
            caller_id VARCHAR(36),
            assigned_at TIMESTAMP NOT NULL,
            reason ENUM(
                'state_round_robin',
                'global_round_robin',
                'manual_reassign',
                'unassigned_cap_reached',
                'unassigned_no_eligible'
            ) NOT NULL,
            status ENUM('assigned', 'unassigned', 'reassigned-superseded') NOT NULL,
            business_date DATE NOT NULL,
            FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE CASCADE,
            FOREIGN KEY (caller_id) REFERENCES callers(id),
            INDEX idx_lead_status (lead_id, status),
            INDEX idx_caller_date (caller_id, business_date)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS rr_pointers (
            key_name VARCHAR(150) PRIMARY KEY,
            last_caller_id VARCHAR(36),
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS daily_counters (
            caller_id VARCHAR(36) NOT NULL,
            business_date DATE NOT NULL,
            count INT NOT NULL DEFAULT 0,
            PRIMARY KEY (caller_id, business_date),
            FOREIGN KEY (caller_id) REFERENCES callers(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    }

    for _, query := range queries {
        if _, err := conn.ExecContext(ctx, query); err != nil {
            return err
        }
    }

    return nil
}
