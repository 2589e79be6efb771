package disktier

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/c360/tiercache/disktier/migrations"
	"github.com/c360/tiercache/errors"
)

const migrationTable = "schema_migrations"

func migrationsFS() fs.FS {
	return migrations.FS
}

// applyMigrations executes embedded .sql migrations at most once per file,
// tracked in a schema_migrations table.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return errors.WrapFatal(err, "disktier", "applyMigrations", "read migrations dir")
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return errors.WrapFatal(err, "disktier", "applyMigrations", "ensure migration table")
	}

	for _, file := range sqlFiles {
		var applied int
		query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE name = ?", migrationTable)
		if err := sqlDB.QueryRow(query, file).Scan(&applied); err != nil {
			return errors.WrapFatal(err, "disktier", "applyMigrations", "check migration state")
		}
		if applied > 0 {
			continue
		}

		contents, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return errors.WrapFatal(err, "disktier", "applyMigrations", "read migration file")
		}
		if _, err := sqlDB.Exec(string(contents)); err != nil {
			return errors.WrapFatal(err, "disktier", "applyMigrations",
				fmt.Sprintf("apply migration %s", file))
		}

		record := fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES (?, ?)", migrationTable)
		if _, err := sqlDB.Exec(record, file, time.Now().UTC().UnixMilli()); err != nil {
			return errors.WrapFatal(err, "disktier", "applyMigrations", "record migration")
		}
	}

	return nil
}
