package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Migration layout:
//
//	migration/{driver}/LATEST.sql        full schema for fresh databases
//	migration/{driver}/NN__description.sql  incremental patches, applied in order
//
// Applied patch names are recorded in migration_history. LATEST.sql already
// contains every patch, so a fresh database records all of them as applied.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit separates the patch number from its description, e.g. "01__add_color.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the full schema applied to new databases.
	LatestSchemaFileName = "LATEST.sql"
)

// validateMigrationFileName checks the "NN__description.sql" naming convention.
func validateMigrationFileName(filename string) error {
	if !strings.Contains(filename, MigrateFileNameSplit) {
		return errors.Errorf("invalid migration filename format (missing %s): %s", MigrateFileNameSplit, filename)
	}
	parts := strings.Split(filename, MigrateFileNameSplit)
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return errors.Errorf("migration filename must start with a number: %s", filename)
	}
	return nil
}

// Migrate brings the database schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	patches, err := s.listPatches()
	if err != nil {
		return err
	}
	applied, err := s.appliedPatches(ctx)
	if err != nil {
		return err
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	count := 0
	for _, filePath := range patches {
		name := filepath.Base(filePath)
		if applied[name] {
			continue
		}
		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		slog.Info("applying migration", slog.String("file", filePath))
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		if err := s.recordPatch(ctx, tx, name); err != nil {
			return err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	if count > 0 {
		slog.Info("migration completed", slog.Int("migrationsApplied", count))
	}
	return nil
}

// preMigrate applies the latest schema to an uninitialized database.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}

	patches, err := s.listPatches()
	if err != nil {
		return err
	}
	for _, filePath := range patches {
		if err := s.recordPatch(ctx, tx, filepath.Base(filePath)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.driver.Dialect())
}

// listPatches returns the incremental migration files in apply order.
func (s *Store) listPatches() ([]string, error) {
	filePaths, err := fs.Glob(migrationFS, s.getMigrationBasePath()+"*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}
	patches := make([]string, 0, len(filePaths))
	for _, filePath := range filePaths {
		name := filepath.Base(filePath)
		if name == LatestSchemaFileName {
			continue
		}
		if err := validateMigrationFileName(name); err != nil {
			slog.Warn("skipping migration file with invalid name", slog.String("file", filePath), slog.String("error", err.Error()))
			continue
		}
		patches = append(patches, filePath)
	}
	sort.Strings(patches)
	return patches, nil
}

func (s *Store) appliedPatches(ctx context.Context) (map[string]bool, error) {
	rows, err := s.driver.GetDB().QueryContext(ctx, "SELECT name FROM migration_history")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration history")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *Store) recordPatch(ctx context.Context, tx *sql.Tx, name string) error {
	stmt := "INSERT INTO migration_history (name) VALUES (?)"
	if s.driver.Dialect() == "postgres" {
		stmt = "INSERT INTO migration_history (name) VALUES ($1)"
	}
	if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
		return errors.Wrapf(err, "failed to record migration %s", name)
	}
	return nil
}

// execute runs a SQL script inside tx. PostgreSQL does not accept several
// statements in one ExecContext call, so its scripts are split first.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if s.driver.Dialect() != "postgres" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to execute statement")
		}
		return nil
	}
	for i, part := range splitSQL(stmt) {
		if _, err := tx.ExecContext(ctx, part); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, part)
		}
	}
	return nil
}

// splitSQL splits a script on semicolons outside single-quoted strings and drops "--" comment lines.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	inQuote := false

	for _, line := range strings.Split(script, "\n") {
		if trimmed := strings.TrimSpace(line); !inQuote && strings.HasPrefix(trimmed, "--") {
			continue
		}
		for _, r := range line {
			switch {
			case r == '\'':
				inQuote = !inQuote
				current.WriteRune(r)
			case r == ';' && !inQuote:
				if stmt := strings.TrimSpace(current.String()); stmt != "" {
					statements = append(statements, stmt)
				}
				current.Reset()
			default:
				current.WriteRune(r)
			}
		}
		current.WriteRune('\n')
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
