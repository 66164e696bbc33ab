package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	device_name     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	phone_number    TEXT NOT NULL DEFAULT '',
	push_name       TEXT NOT NULL DEFAULT '',
	profile_pic     TEXT NOT NULL DEFAULT '',
	platform        TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	connected_at    TIMESTAMP,
	last_sync_at    TIMESTAMP,
	disconnected_at TIMESTAMP,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`

// ConnectDatabase abre (criando se necessário) o banco SQLite de sessões.
func ConnectDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("erro ao criar diretório do banco: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// SQLite não lida bem com escritas concorrentes em múltiplas conexões
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	if _, err := db.Exec(sessionSchema); err != nil {
		return nil, fmt.Errorf("erro ao aplicar schema: %v", err)
	}

	return db, nil
}
