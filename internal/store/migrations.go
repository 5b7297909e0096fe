package store

import "database/sql"

// migration is one additive schema step. Migrations are never edited once
// shipped; new columns get new migrations with defaults, removed columns are
// tombstoned (renamed, never dropped) so partially-migrated stores from
// older versions stay loadable (spec §4.1 "Schema migration").
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				applied_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				prd_ids TEXT NOT NULL DEFAULT '[]',
				dimension INTEGER NOT NULL DEFAULT 768,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				agent_persona TEXT NOT NULL DEFAULT '',
				due_date TEXT,
				source_transcript_id TEXT NOT NULL DEFAULT '',
				source_prd_id TEXT NOT NULL DEFAULT '',
				parent_task_id TEXT NOT NULL DEFAULT '',
				subtask_ids TEXT NOT NULL DEFAULT '[]',
				dependencies TEXT NOT NULL DEFAULT '[]',
				context_files TEXT NOT NULL DEFAULT '[]',
				complexity INTEGER NOT NULL DEFAULT 0,
				reasoning TEXT NOT NULL DEFAULT '',
				completion_summary TEXT NOT NULL DEFAULT '',
				enhancements TEXT NOT NULL DEFAULT '[]',
				comprehension_tests TEXT NOT NULL DEFAULT '[]',
				sort_order INTEGER,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS artifacts (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL DEFAULT '',
				source_id TEXT NOT NULL,
				source_type TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				embedding BLOB,
				metadata TEXT NOT NULL DEFAULT '{}',
				binary_content BLOB,
				mime_type TEXT NOT NULL DEFAULT '',
				source_url TEXT NOT NULL DEFAULT '',
				page_number INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS task_artifacts (
				task_id TEXT NOT NULL,
				artifact_id TEXT NOT NULL,
				relevance_score REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				PRIMARY KEY (task_id, artifact_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_project ON artifacts(project_id)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_source ON artifacts(source_id)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`ALTER TABLE projects ADD COLUMN scan_config TEXT NOT NULL DEFAULT '{}'`,
		},
	},
}

// applyMigrations runs every migration whose version has not yet been
// recorded, in order. Idempotent: safe to call on every Open.
func applyMigrations(db *sql.DB) error {
	// version 1 always creates schema_migrations itself, so probe for it
	// defensively before the first SELECT.
	if _, err := db.Exec(migrations[0].stmts[0]); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
