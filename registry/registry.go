package registry

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/decred/slog"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Registry is the shared session store plus the push hub that notifies
// subscribers of row mutations. The two controllers of a match never talk to
// each other directly; this record and the escrow contract are the only
// shared state.
type Registry struct {
	db  *sql.DB
	hub *hub
	log slog.Logger
}

// Open opens (creating if needed) the registry database and runs migrations.
func Open(dbPath string, log slog.Logger) (*Registry, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %q: %w", p, err)
		}
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Debugf("registry: opened %s", dbPath)
	return &Registry{
		db:  db,
		hub: newHub(log),
		log: log,
	}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}
