package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode switches migration loading from the embedded filesystem to the
// on-disk migrations directory, so new migrations can be iterated on
// without rebuilding the binary.
var DevMode = false

// devMigrationsDir is where migrations live relative to the repository
// root. Only consulted when DevMode is set.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migrations as a filesystem rooted at the
// directory containing the .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev mode: migrations directory not found: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	return sub, nil
}
