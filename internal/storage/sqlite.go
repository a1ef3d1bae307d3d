package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/easeaico/rolechat/internal/types"
)

// SQLiteMemoryRepo stores memory rows in a local SQLite file. It serves
// single-node deployments that run without PostgreSQL.
type SQLiteMemoryRepo struct {
	db *sql.DB
}

// OpenSQLiteMemoryRepo opens (or creates) the database at path.
func OpenSQLiteMemoryRepo(path string) (*SQLiteMemoryRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps concurrent reconciles from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      TEXT NOT NULL,
			character_id TEXT NOT NULL,
			memory_type  TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memories table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_key ON memories (user_id, character_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memories index: %w", err)
	}
	return &SQLiteMemoryRepo{db: db}, nil
}

func (r *SQLiteMemoryRepo) Close() error { return r.db.Close() }

func (r *SQLiteMemoryRepo) ListByKey(ctx context.Context, userID, characterID string) ([]types.MemoryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, character_id, memory_type, content, created_at
		FROM memories
		WHERE user_id = ? AND character_id = ?
		ORDER BY id ASC
	`, userID, characterID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []types.MemoryRow
	for rows.Next() {
		var (
			row       types.MemoryRow
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&row.ID, &row.UserID, &row.CharacterID, &kind, &row.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		row.MemoryType = types.MemoryCategory(kind)
		row.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}

func (r *SQLiteMemoryRepo) Insert(ctx context.Context, row types.MemoryRow) error {
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, character_id, memory_type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, row.UserID, row.CharacterID, string(row.MemoryType), row.Content, createdAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (r *SQLiteMemoryRepo) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete memory %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteMemoryRepo) DeleteByKey(ctx context.Context, userID, characterID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ? AND character_id = ?`, userID, characterID); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}
