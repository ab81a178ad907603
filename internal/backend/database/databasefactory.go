package database

import (
	"fmt"
	"log/slog"
)

// DefaultConnectionString keeps everything in process memory.
const DefaultConnectionString = ":memory:"

func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	if connectionString == "" {
		connectionString = DefaultConnectionString
	}

	switch databaseType {
	case "sqlite", "":
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Ensure database schema exists (idempotent), important for in-memory SQLite
	slog.Info("Database: initializing schema", "type", databaseType, "connection", connectionString)
	if _, err = database.CreateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
