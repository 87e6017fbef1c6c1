// Package store provides the persistent credential store: a SQLite-backed
// table of user records with UNIQUE(id) and a verify operation, adapted from
// the migration-slice pattern used for embedded SQLite elsewhere in this
// codebase's lineage.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// RootID is the single seed account created at startup.
const RootID = "root"

// RootPassword is the plaintext password hashed and stored for RootID. It is
// hashed by the caller (cmd/server) via internal/hash before Seed is called,
// keeping the hashing primitive out of this package entirely.
const RootPassword = "alpine"

// reservedPrefixes lists id prefixes that InsertUnique must reject. "root"
// is matched as a prefix, not an exact string, so "root2" is also reserved.
var reservedPrefixes = []string{"guest_", "root"}

const minPasswordHashLen = 4

var migrations = []string{
	// v1 — users
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		bio           TEXT,
		location      TEXT
	)`,
}

// Store wraps a SQLite database holding the user table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent
	// sessions; reads are cheap enough to serialize through it too at this
	// scale.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)
	`); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}

	var applied int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		return fmt.Errorf("store: count migrations: %w", err)
	}

	for i := applied; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", i+1, err)
		}
	}
	log.Info().Int("applied", len(migrations)-applied).Int("total", len(migrations)).Msg("store migrations applied")
	return nil
}

// User mirrors the wire UserPayload plus the stored password_hash.
type User struct {
	ID           string
	PasswordHash string
	Bio          *string
	Location     *string
}

// InsertUnique inserts u, rejecting reserved id prefixes, an already-short
// password hash, or a duplicate id. The returned error's message is surfaced
// verbatim to the client in RegisterRes{Err(reason)}.
func (s *Store) InsertUnique(ctx context.Context, u User) error {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(u.ID, prefix) {
			return fmt.Errorf("reserved id format")
		}
	}
	if len(u.PasswordHash) < minPasswordHashLen {
		return fmt.Errorf("too short password! (password >= %d)", minPasswordHashLen)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, password_hash, bio, location) VALUES (?, ?, ?, ?)`,
		u.ID, u.PasswordHash, u.Bio, u.Location,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("id %q is already taken", u.ID)
		}
		return fmt.Errorf("failed to insert a new user: %w", err)
	}
	return nil
}

// Verify checks id/passwordHash against the stored record and returns id on
// success.
func (s *Store) Verify(ctx context.Context, id, passwordHash string) (string, error) {
	var got string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = ? AND password_hash = ?`, id, passwordHash,
	).Scan(&got)
	if err != nil {
		return "", fmt.Errorf("Wrong ID or Password")
	}
	return got, nil
}

// Seed ensures the root account exists, inserting it (bypassing the reserved
// id check, which only applies to client-initiated inserts) if absent. It is
// called once at server startup; failure is a fatal bringup error.
func (s *Store) Seed(ctx context.Context, id, passwordHash, bio string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("store: check seed row: %w", err)
	}
	if exists > 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, password_hash, bio, location) VALUES (?, ?, ?, NULL)`,
		id, passwordHash, bio,
	)
	if err != nil {
		return fmt.Errorf("store: seed root account: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
