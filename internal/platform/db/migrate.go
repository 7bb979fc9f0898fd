package db

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationFile matches "<version>_<name>.sql", e.g. 001_core.sql.
var migrationFile = regexp.MustCompile(`^(\d+)_\w+\.sql$`)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies a Schema's migration files in version order and records
// each one in <schema>._migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	schema Schema
}

func NewMigrator(pool *pgxpool.Pool, schema Schema) *Migrator {
	return &Migrator{pool: pool, schema: schema}
}

// lockKey is the advisory lock id held while migrating the schema, so two
// processes starting together apply each file once.
func (m *Migrator) lockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte("medpay-migrate:" + m.schema.Name))
	return int64(h.Sum64())
}

// LoadMigrations reads the top-level migration files of the schema. Names
// not shaped like 001_core.sql are ignored; a repeated version is an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.schema.Migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations for schema %s: %w", m.schema.Name, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		match := migrationFile.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(m.schema.Migrations, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: entry.Name(), SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	pending, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", m.lockKey()); err != nil {
		return 0, fmt.Errorf("lock schema %s: %w", m.schema.Name, err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", m.lockKey())

	if err := m.ensureTable(ctx, conn.Conn()); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx, conn.Conn())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range pending {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if err := m.apply(ctx, conn.Conn(), mig); err != nil {
			return count, fmt.Errorf("apply migration %s: %w", mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Status lists every migration file with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	files, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := m.ensureTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}
	return mergeStatus(files, applied), nil
}

func (m *Migrator) ensureTable(ctx context.Context, conn *pgx.Conn) error {
	ddl := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s._migrations (
    version    INTEGER PRIMARY KEY,
    name       VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, m.schema.Name)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s._migrations: %w", m.schema.Name, err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context, conn *pgx.Conn) (map[int]time.Time, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT version, applied_at FROM %s._migrations`, m.schema.Name))
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	var (
		version int
		at      time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&version, &at}, func() error {
		applied[version] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, conn *pgx.Conn, mig Migration) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+m.schema.SearchPath()); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s._migrations (version, name) VALUES ($1, $2)", m.schema.Name),
			mig.Version, mig.Name)
		return err
	})
}

func mergeStatus(files []Migration, applied map[int]time.Time) []MigrationStatus {
	out := make([]MigrationStatus, len(files))
	for i, mig := range files {
		out[i] = MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			at := at
			out[i].Applied = true
			out[i].AppliedAt = &at
		}
	}
	return out
}
