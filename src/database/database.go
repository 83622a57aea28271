package database

import (
	"database/sql"
	"fmt"

	"github.com/username/welfarefund/src/logger"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		staff_number TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		joined_at TIMESTAMP,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS contributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		period TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		note TEXT NOT NULL DEFAULT '',
		recorded_by INTEGER,
		hash_id TEXT NOT NULL,
		paid_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, hash_id)
	);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		reviewed_by INTEGER,
		review_note TEXT NOT NULL DEFAULT '',
		requested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		reviewed_at TIMESTAMP,
		completed_at TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS welfare_services (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		max_amount TEXT NOT NULL,
		min_membership_months INTEGER NOT NULL DEFAULT 0,
		min_consistency_percent REAL NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS welfare_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		service_id INTEGER NOT NULL,
		amount_requested TEXT NOT NULL,
		amount_approved TEXT,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		months_as_member INTEGER NOT NULL DEFAULT 0,
		consistency_percent REAL NOT NULL DEFAULT 0,
		reviewed_by INTEGER,
		review_note TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		reviewed_at TIMESTAMP,
		disbursed_at TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		FOREIGN KEY(service_id) REFERENCES welfare_services(id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		channel TEXT NOT NULL DEFAULT 'in_app',
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_staff_number ON users(staff_number) WHERE staff_number <> '';
	CREATE INDEX IF NOT EXISTS idx_contributions_user_period ON contributions(user_id, period);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_applications_user ON welfare_applications(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);
	`

// Open opens (creating if needed) the SQLite database at databasePath,
// ensures the schema exists and applies column migrations.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database at %s: %w", databasePath, err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	logger.L.Info("Checking database migrations", "databasePath", databasePath)
	if err := migrateUserTable(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateContributionTable(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	logger.L.Info("Database tables ensured/created.")
	return db, nil
}

// tableColumns returns the set of column names of table, or nil when the table does not exist yet.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error checking for '%s' table: %w", table, err)
	}

	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("error querying table schema for '%s': %w", table, err)
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("error scanning column info for '%s': %w", table, err)
		}
		columnExists[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over column info for '%s': %w", table, err)
	}
	return columnExists, nil
}

type columnMigration struct {
	name string
	ddl  string
}

func addMissingColumns(db *sql.DB, table string, migrations []columnMigration) error {
	columnExists, err := tableColumns(db, table)
	if err != nil {
		return err
	}
	if columnExists == nil {
		logger.L.Info("Table does not exist, no migration needed as table will be created.", "table", table)
		return nil
	}
	for _, m := range migrations {
		if columnExists[m.name] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, m.ddl)); err != nil {
			return fmt.Errorf("error adding '%s' column to '%s': %w", m.name, table, err)
		}
		logger.L.Info("Added column", "table", table, "column", m.name)
	}
	return nil
}

// Columns added to users after the first schema release.
func migrateUserTable(db *sql.DB) error {
	return addMissingColumns(db, "users", []columnMigration{
		{"full_name", "full_name TEXT NOT NULL DEFAULT ''"},
		{"staff_number", "staff_number TEXT NOT NULL DEFAULT ''"},
		{"department", "department TEXT NOT NULL DEFAULT ''"},
		{"phone", "phone TEXT NOT NULL DEFAULT ''"},
		{"role", "role TEXT NOT NULL DEFAULT 'member'"},
		{"status", "status TEXT NOT NULL DEFAULT 'active'"},
		{"joined_at", "joined_at TIMESTAMP"},
		{"auth_provider", "auth_provider TEXT DEFAULT 'local'"},
		{"is_email_verified", "is_email_verified BOOLEAN DEFAULT FALSE"},
		{"email_verification_token", "email_verification_token TEXT"},
		{"email_verification_token_expires_at", "email_verification_token_expires_at TIMESTAMP"},
		{"password_reset_token", "password_reset_token TEXT"},
		{"password_reset_token_expires_at", "password_reset_token_expires_at TIMESTAMP"},
	})
}

func migrateContributionTable(db *sql.DB) error {
	return addMissingColumns(db, "contributions", []columnMigration{
		{"note", "note TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "updated_at TIMESTAMP"},
	})
}
