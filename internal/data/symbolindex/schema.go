package symbolindex

import (
	"database/sql"
	"fmt"
)

func migrateIndexSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("index db is nil")
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS classes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  line_number INTEGER NOT NULL DEFAULT 0,
  column_number INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_classes_name ON classes(name);
CREATE TABLE IF NOT EXISTS members (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  class_id INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  line_number INTEGER NOT NULL DEFAULT 0,
  column_number INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_members_class_name ON members(class_id, name);
`)
	if err != nil {
		return fmt.Errorf("migrate index schema: %w", err)
	}
	return nil
}
