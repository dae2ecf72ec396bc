package db

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/postgres/*.sql schema/sqlite/*.sql
var schemaFS embed.FS

// Migrate applies the embedded schema files for the connection's driver, in
// filename order. Statements use IF NOT EXISTS so reruns are harmless. The
// roles/products/categories tables exist for development and tests; deployed
// installs point the catalog and role adapters at the host platform's own
// tables instead.
func Migrate(conn *sqlx.DB) error {
	var dir string
	switch conn.DriverName() {
	case "postgres":
		dir = "schema/postgres"
	case "sqlite3":
		dir = "schema/sqlite"
	default:
		return fmt.Errorf("unsupported database driver %q", conn.DriverName())
	}

	var files []string
	err := fs.WalkDir(schemaFS, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".sql" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read schema files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := schemaFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			return fmt.Errorf("apply %s: %w", file, err)
		}
	}
	return nil
}
