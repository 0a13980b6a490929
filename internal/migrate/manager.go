// Package migrate applies the fleet schema and its development seeds. Files
// come from an fs.FS (the set embedded in package migrations by default) and
// are applied in lexical order; each file runs in its own transaction
// together with the journal row that records it.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// ErrNothingApplied is returned by Down when the journal is empty.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Applied is one journal entry.
type Applied struct {
	Name string
	At   time.Time
}

func (a Applied) String() string {
	return a.At.UTC().Format(time.RFC3339) + "  " + a.Name
}

// journal is a bookkeeping table listing files already applied.
type journal string

func (j journal) ensure(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, j))
	return err
}

func (j journal) entries(ctx context.Context, db *sql.DB) ([]Applied, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, j))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (j journal) record(ctx context.Context, tx *sql.Tx, name string, at time.Time) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, j), name, at)
	return err
}

func (j journal) forget(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, j), name)
	return err
}

// Manager runs schema migrations and seeds against one database.
type Manager struct {
	db         *sql.DB
	migrations fs.FS
	seeds      fs.FS
	schema     journal
	seeded     journal
	now        func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithJournals renames the bookkeeping tables, e.g. to run two schemas side by side.
func WithJournals(migrations, seeds string) Option {
	return func(m *Manager) {
		if migrations != "" {
			m.schema = journal(migrations)
		}
		if seeds != "" {
			m.seeded = journal(seeds)
		}
	}
}

// NewManager returns a Manager over the given file systems. seeds may be nil.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:         db,
		migrations: migrations,
		seeds:      seeds,
		schema:     "schema_migrations",
		seeded:     "schema_seeds",
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) prepare(ctx context.Context) error {
	if err := m.schema.ensure(ctx, m.db); err != nil {
		return fmt.Errorf("ensure %s: %w", m.schema, err)
	}
	if err := m.seeded.ensure(ctx, m.db); err != nil {
		return fmt.Errorf("ensure %s: %w", m.seeded, err)
	}
	return nil
}

// Up applies every *.up.sql file not yet in the journal.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.migrations, upSuffix, m.schema)
}

// Seed applies every seed file not yet in the seed journal.
func (m *Manager) Seed(ctx context.Context) error {
	return m.applyPending(ctx, m.seeds, ".sql", m.seeded)
}

func (m *Manager) applyPending(ctx context.Context, fsys fs.FS, suffix string, j journal) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := j.entries(ctx, m.db)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(done))
	for _, a := range done {
		seen[a.Name] = true
	}
	files, err := listSQL(fsys, suffix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if seen[f.name] {
			continue
		}
		err := m.inTx(ctx, fsys, f.path, func(tx *sql.Tx) error {
			return j.record(ctx, tx, f.name, m.now())
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", f.name, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration using its *.down.sql twin.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := m.schema.entries(ctx, m.db)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return ErrNothingApplied
	}
	last := done[len(done)-1].Name
	down, err := locate(m.migrations, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if err != nil {
		return fmt.Errorf("revert %s: no down migration", last)
	}
	err = m.inTx(ctx, m.migrations, down, func(tx *sql.Tx) error {
		return m.schema.forget(ctx, tx, last)
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	return nil
}

// Status lists applied migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Applied, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	return m.schema.entries(ctx, m.db)
}

// inTx runs the statements of one file and then after, all in one transaction.
func (m *Manager) inTx(ctx context.Context, fsys fs.FS, name string, after func(*sql.Tx) error) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := after(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlFile struct {
	name string // base name, the journal key
	path string // path inside the file system
}

// listSQL returns files ending in suffix, ordered by base name. A nil or
// missing file system yields nothing.
func listSQL(fsys fs.FS, suffix string) ([]sqlFile, error) {
	if fsys == nil {
		return nil, nil
	}
	var files []sqlFile
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{name: d.Name(), path: p})
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func locate(fsys fs.FS, base string) (string, error) {
	files, err := listSQL(fsys, base)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if path.Base(f.path) == base {
			return f.path, nil
		}
	}
	return "", fs.ErrNotExist
}

// splitStatements cuts a script at semicolons outside single-quoted literals
// and drops "--" line comments. Blank statements are omitted.
func splitStatements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
				cur.WriteRune(r)
			}
		case !quoted && r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			i++
		case r == '\'':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ';' && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
