package database

import "github.com/google/uuid"

// generateID returns a random (version 4) UUID used as primary key for every table.
func generateID() string {
	return uuid.NewString()
}
