package featurehooks

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the webhook and delivery ledger schema, with SQLite
// variants under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetCoreMigrationsFS returns the schema migrations the SQL stores expect.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
