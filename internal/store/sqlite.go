package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teemow/followmail/internal/threads"
)

// SQLiteStore keeps users in a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (or creates) a database at the given path.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, googleID, email, refreshToken string) (*User, error) {
	if googleID == "" {
		return nil, fmt.Errorf("google ID is required")
	}

	ts := now()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (google_id, email, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (google_id) DO UPDATE SET
			email = excluded.email,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
			updated_at = excluded.updated_at`,
		googleID, email, refreshToken, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, googleID)
}

func (s *SQLiteStore) GetUser(ctx context.Context, googleID string) (*User, error) {
	u := &User{GoogleID: googleID, FollowedFrom: []string{}, FollowedTo: []string{}}
	err := s.conn.QueryRowContext(ctx,
		"SELECT email, refresh_token FROM users WHERE google_id = ?", googleID,
	).Scan(&u.Email, &u.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		"SELECT role, address FROM followed WHERE google_id = ? ORDER BY role, position", googleID)
	if err != nil {
		return nil, fmt.Errorf("list followed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, address string
		if err := rows.Scan(&role, &address); err != nil {
			return nil, fmt.Errorf("scan followed: %w", err)
		}
		switch threads.Role(role) {
		case threads.RoleFrom:
			u.FollowedFrom = append(u.FollowedFrom, address)
		case threads.RoleTo:
			u.FollowedTo = append(u.FollowedTo, address)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list followed: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) userExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, googleID string) error {
	var n int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM users WHERE google_id = ?", googleID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddFollowed(ctx context.Context, googleID string, role threads.Role, address string) (bool, error) {
	if err := validateRole(role); err != nil {
		return false, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return false, fmt.Errorf("address is required")
	}
	if err := s.userExists(ctx, s.conn, googleID); err != nil {
		return false, err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO followed (google_id, role, address, position)
		SELECT ?, ?, ?, COALESCE(MAX(position), -1) + 1
		FROM followed WHERE google_id = ? AND role = ?`,
		googleID, string(role), address, googleID, string(role),
	)
	if err != nil {
		return false, fmt.Errorf("add followed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add followed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetFollowed(ctx context.Context, googleID string, from, to []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.userExists(ctx, tx, googleID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM followed WHERE google_id = ?", googleID); err != nil {
		return fmt.Errorf("clear followed: %w", err)
	}

	lists := []struct {
		role  threads.Role
		addrs []string
	}{
		{threads.RoleFrom, cleanAddresses(from)},
		{threads.RoleTo, cleanAddresses(to)},
	}
	for _, l := range lists {
		for i, addr := range l.addrs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO followed (google_id, role, address, position) VALUES (?, ?, ?, ?)",
				googleID, string(l.role), addr, i,
			); err != nil {
				return fmt.Errorf("insert followed: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit followed: %w", err)
	}
	return nil
}
