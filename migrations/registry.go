package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	featurehooks "github.com/goliatone/go-featurehooks"
	persistence "github.com/goliatone/go-persistence-bun"
)

// Dialect selects which migration tree applies to a database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const migrationsDir = "data/sql/migrations"

// Source is one dialect's migration tree. Versions lists the migration
// versions found, each with an up and a down file.
type Source struct {
	Dialect  Dialect
	Path     string
	FS       fs.FS
	Versions []string
}

// Registrar receives SQL migration trees. *persistence.Client satisfies it.
type Registrar interface {
	RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "pg", "postgresql":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no schema for driver %q", driver)
	}
}

// Sources resolves the postgres and sqlite trees from root, defaulting to the
// embedded schema. Each tree must hold at least one version and every up
// file needs its down file.
func Sources(root ...fs.FS) ([]Source, error) {
	fsys := featurehooks.GetCoreMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		fsys = root[0]
	}

	base, basePath, err := migrationsRoot(fsys)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: pathJoin(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := pairedVersions(sources[i])
		if err != nil {
			return nil, err
		}
		sources[i].Versions = versions
	}
	return sources, nil
}

// SourceFor returns the tree for dialect.
func SourceFor(dialect Dialect, root ...fs.FS) (Source, error) {
	sources, err := Sources(root...)
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

// Register hands the featurehooks schema for dialect to target. Migrations
// run when the caller migrates the persistence client.
func Register(target Registrar, dialect Dialect, root ...fs.FS) (Source, error) {
	if target == nil {
		return Source{}, fmt.Errorf("migrations: registrar is required")
	}
	source, err := SourceFor(dialect, root...)
	if err != nil {
		return Source{}, err
	}
	target.RegisterSQLMigrations(source.FS)
	return source, nil
}

func pairedVersions(source Source) ([]string, error) {
	ups, err := fs.Glob(source.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s %s: %w", source.Dialect, source.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", source.Dialect, source.Path)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(source.FS, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %s has no down file", source.Dialect, version)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, migrationsDir)
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, migrationsDir, nil
		}
	}

	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}

	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
