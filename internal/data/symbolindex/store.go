// Package symbolindex provides the authoritative symbol lookup the
// resolution caches sit in front of: a SQLite-backed index for real runs and
// an in-memory one for tests and index-less setups.
package symbolindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"enginelink/internal/core/ports"
	"enginelink/internal/engine/symbols"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var (
	_ ports.SymbolLookup = (*SQLiteIndex)(nil)
	_ Index              = (*SQLiteIndex)(nil)
	_ Index              = (*MemoryIndex)(nil)
)

type SQLiteIndex struct {
	db             *sql.DB
	findStmt       *sql.Stmt
	findMemberStmt *sql.Stmt
}

func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("index path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("index path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite index %q: %w", cleanPath, err)
	}
	if err := migrateIndexSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	findStmt, err := db.Prepare(`SELECT id, name, file_path, line_number, column_number
FROM classes
WHERE name = ?
ORDER BY id`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare find stmt: %w", err)
	}

	findMemberStmt, err := db.Prepare(`SELECT m.id, m.name, m.file_path, m.line_number, m.column_number, c.id, c.name
FROM members m
JOIN classes c ON c.id = m.class_id
WHERE m.class_id = ? AND m.name = ?
ORDER BY m.id`)
	if err != nil {
		_ = findStmt.Close()
		_ = db.Close()
		return nil, fmt.Errorf("prepare find member stmt: %w", err)
	}

	return &SQLiteIndex{
		db:             db,
		findStmt:       findStmt,
		findMemberStmt: findMemberStmt,
	}, nil
}

func (s *SQLiteIndex) Find(ctx context.Context, name string) ([]symbols.Symbol, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("index not initialized")
	}
	rows, err := s.findStmt.QueryContext(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find class %q: %w", name, err)
	}
	defer rows.Close()

	var out []symbols.Symbol
	for rows.Next() {
		sym := symbols.Symbol{Kind: symbols.KindClass}
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Location.File, &sym.Location.Line, &sym.Location.Column); err != nil {
			return nil, fmt.Errorf("scan class row: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate class rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteIndex) FindMember(ctx context.Context, owner symbols.Symbol, name string) ([]symbols.Symbol, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("index not initialized")
	}
	rows, err := s.findMemberStmt.QueryContext(ctx, int64(owner.ID), name)
	if err != nil {
		return nil, fmt.Errorf("find member %q of %q: %w", name, owner.Name, err)
	}
	defer rows.Close()

	var out []symbols.Symbol
	for rows.Next() {
		sym := symbols.Symbol{Kind: symbols.KindMember}
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Location.File, &sym.Location.Line, &sym.Location.Column, &sym.Owner, &sym.OwnerName); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteIndex) PutClass(ctx context.Context, name string, loc symbols.Location) (symbols.Symbol, error) {
	if s == nil || s.db == nil {
		return symbols.Symbol{}, fmt.Errorf("index not initialized")
	}
	return insertClass(ctx, s.db, name, loc)
}

func (s *SQLiteIndex) PutMember(ctx context.Context, owner symbols.Symbol, name string, loc symbols.Location) (symbols.Symbol, error) {
	if s == nil || s.db == nil {
		return symbols.Symbol{}, fmt.Errorf("index not initialized")
	}
	return insertMember(ctx, s.db, owner, name, loc)
}

// Replace swaps the index content for defs in one transaction.
func (s *SQLiteIndex) Replace(ctx context.Context, defs []ClassDef) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("index not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index replace tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM members`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM classes`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear classes: %w", err)
	}
	for _, def := range defs {
		owner, err := insertClass(ctx, tx, def.Name, def.Location)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, member := range def.Members {
			if _, err := insertMember(ctx, tx, owner, member.Name, member.Location); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index replace tx: %w", err)
	}
	return nil
}

// Count returns the number of classes and members in the index.
func (s *SQLiteIndex) Count(ctx context.Context) (classes, members int, err error) {
	if s == nil || s.db == nil {
		return 0, 0, fmt.Errorf("index not initialized")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM classes`).Scan(&classes); err != nil {
		return 0, 0, fmt.Errorf("count classes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM members`).Scan(&members); err != nil {
		return 0, 0, fmt.Errorf("count members: %w", err)
	}
	return classes, members, nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_ = s.findStmt.Close()
	_ = s.findMemberStmt.Close()
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertClass(ctx context.Context, db execer, name string, loc symbols.Location) (symbols.Symbol, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO classes (name, file_path, line_number, column_number) VALUES (?, ?, ?, ?)`,
		name, loc.File, loc.Line, loc.Column)
	if err != nil {
		return symbols.Symbol{}, fmt.Errorf("insert class %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return symbols.Symbol{}, fmt.Errorf("class id for %q: %w", name, err)
	}
	return symbols.Symbol{ID: symbols.ID(id), Kind: symbols.KindClass, Name: name, Location: loc}, nil
}

func insertMember(ctx context.Context, db execer, owner symbols.Symbol, name string, loc symbols.Location) (symbols.Symbol, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO members (class_id, name, file_path, line_number, column_number) VALUES (?, ?, ?, ?, ?)`,
		int64(owner.ID), name, loc.File, loc.Line, loc.Column)
	if err != nil {
		return symbols.Symbol{}, fmt.Errorf("insert member %q of %q: %w", name, owner.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return symbols.Symbol{}, fmt.Errorf("member id for %q: %w", name, err)
	}
	return symbols.Symbol{
		ID:        symbols.ID(id),
		Kind:      symbols.KindMember,
		Name:      name,
		Owner:     owner.ID,
		OwnerName: owner.Name,
		Location:  loc,
	}, nil
}
