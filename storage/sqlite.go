package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using modernc.org/sqlite.
// Intended for development; production deployments use PostgresStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER NOT NULL UNIQUE,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		is_activated INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_groups_name ON groups(name);

	CREATE TABLE IF NOT EXISTS group_users (
		group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, user_id)
	);
`

// NewSQLiteStore creates a SQLite store at the given path, or an in-memory
// database when path is ":memory:". The schema is created if it doesn't
// exist; re-opening an initialized database is a no-op.
func NewSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// foreign_keys is a per-connection pragma; setting it in the DSN
	// applies it to every connection the pool opens.
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not
	// open a second one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store initialized", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE telegram_id = ?`, u.TelegramID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("user with telegram_id %d: %w", u.TelegramID, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking user: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.TelegramID, nullString(u.Username), nullString(u.FirstName), nullString(u.LastName),
		now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}

	s.logger.Info("user created",
		zap.Int64("id", id),
		zap.Int64("telegram_id", u.TelegramID))

	return &User{
		ID:         id,
		TelegramID: u.TelegramID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		CreatedAt:  now,
	}, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name,
		       u.is_activated, u.created_at, u.updated_at, COUNT(gu.group_id)
		FROM users u
		LEFT JOIN group_users gu ON gu.user_id = u.id
		GROUP BY u.id
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name,
		       u.is_activated, u.created_at, u.updated_at, COUNT(gu.group_id)
		FROM users u
		LEFT JOIN group_users gu ON gu.user_id = u.id
		WHERE u.telegram_id = ?
		GROUP BY u.id`, telegramID)

	user, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with telegram_id %d: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description
		FROM groups g
		JOIN group_users gu ON gu.group_id = g.id
		WHERE gu.user_id = ?
		ORDER BY g.id`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading user groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref GroupRef
		var description sql.NullString
		if err := rows.Scan(&ref.ID, &ref.Name, &description); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		ref.Description = description.String
		user.Groups = append(user.Groups, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading user groups: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) CreateGroup(ctx context.Context, g NewGroup) (*Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = ?`, g.Name).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("group with name '%s': %w", g.Name, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking group: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO groups (name, description, created_at) VALUES (?, ?, ?)`,
		g.Name, nullString(g.Description), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting group: %w", err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading group id: %w", err)
	}

	attached := 0
	for _, telegramID := range g.UserIDs {
		var userID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE telegram_id = ?`, telegramID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("user not found while creating group",
				zap.Int64("telegram_id", telegramID),
				zap.String("group", g.Name))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up user %d: %w", telegramID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_users (group_id, user_id) VALUES (?, ?)`,
			groupID, userID); err != nil {
			return nil, fmt.Errorf("attaching user %d: %w", telegramID, err)
		}
		attached++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing group: %w", err)
	}

	s.logger.Info("group created",
		zap.Int64("id", groupID),
		zap.String("name", g.Name),
		zap.Int("users_attached", attached))

	return &Group{
		ID:          groupID,
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   now,
		UsersCount:  attached,
	}, nil
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Memberships are removed explicitly rather than relying on the
	// cascade, which needs the foreign_keys pragma on the connection.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_users WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("deleting group memberships: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("group with id %d: %w", groupID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group delete: %w", err)
	}
	s.logger.Info("group deleted", zap.Int64("id", groupID))
	return nil
}

func (s *SQLiteStore) AddUserToGroup(ctx context.Context, groupID, telegramID int64) error {
	userID, err := s.resolveMembership(ctx, groupID, telegramID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_users (group_id, user_id) VALUES (?, ?)`,
		groupID, userID); err != nil {
		return fmt.Errorf("adding user to group: %w", err)
	}
	s.logger.Info("user added to group",
		zap.Int64("group_id", groupID),
		zap.Int64("telegram_id", telegramID))
	return nil
}

func (s *SQLiteStore) RemoveUserFromGroup(ctx context.Context, groupID, telegramID int64) error {
	userID, err := s.resolveMembership(ctx, groupID, telegramID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_users WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("removing user from group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing user from group: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d is not a member of group %d: %w", telegramID, groupID, ErrNotFound)
	}
	s.logger.Info("user removed from group",
		zap.Int64("group_id", groupID),
		zap.Int64("telegram_id", telegramID))
	return nil
}

// resolveMembership verifies both sides of a membership change exist and
// returns the internal user id.
func (s *SQLiteStore) resolveMembership(ctx context.Context, groupID, telegramID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM groups WHERE id = ?`, groupID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("group with id %d: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up group: %w", err)
	}

	var userID int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE telegram_id = ?`, telegramID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user with telegram_id %d: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up user: %w", err)
	}
	return userID, nil
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at, COUNT(gu.user_id)
		FROM groups g
		LEFT JOIN group_users gu ON gu.group_id = g.id
		GROUP BY g.id
		ORDER BY g.id`)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		group, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return groups, nil
}

func (s *SQLiteStore) GetGroupByID(ctx context.Context, groupID int64) (*Group, error) {
	return s.getGroup(ctx, `WHERE g.id = ?`, groupID)
}

func (s *SQLiteStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return s.getGroup(ctx, `WHERE g.name = ?`, name)
}

func (s *SQLiteStore) getGroup(ctx context.Context, where string, arg any) (*Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at, COUNT(gu.user_id)
		FROM groups g
		LEFT JOIN group_users gu ON gu.group_id = g.id
		`+where+`
		GROUP BY g.id`, arg)

	group, err := scanGroupRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name
		FROM users u
		JOIN group_users gu ON gu.user_id = u.id
		WHERE gu.group_id = ?
		ORDER BY u.id`, group.ID)
	if err != nil {
		return nil, fmt.Errorf("loading group users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user User
		var username, firstName, lastName sql.NullString
		if err := rows.Scan(&user.ID, &user.TelegramID, &username, &firstName, &lastName); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		user.Username = username.String
		user.FirstName = firstName.String
		user.LastName = lastName.String
		group.Users = append(group.Users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading group users: %w", err)
	}
	return group, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUserRow scans a user row with a trailing group count. Timestamps are
// stored as RFC3339 text.
func scanUserRow(r rowScanner) (*User, error) {
	var user User
	var username, firstName, lastName sql.NullString
	var createdAt string
	var updatedAt sql.NullString

	err := r.Scan(&user.ID, &user.TelegramID, &username, &firstName, &lastName,
		&user.IsActivated, &createdAt, &updatedAt, &user.GroupsCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	if updatedAt.Valid {
		user.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing user updated_at: %w", err)
		}
	}
	return &user, nil
}

// scanGroupRow scans a group row with a trailing user count
func scanGroupRow(r rowScanner) (*Group, error) {
	var group Group
	var description sql.NullString
	var createdAt string
	var updatedAt sql.NullString

	err := r.Scan(&group.ID, &group.Name, &description, &createdAt, &updatedAt, &group.UsersCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning group: %w", err)
	}

	group.Description = description.String

	group.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing group created_at: %w", err)
	}
	if updatedAt.Valid {
		group.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing group updated_at: %w", err)
		}
	}
	return &group, nil
}

// nullString maps empty strings to NULL so optional fields round-trip
// the way the schema declares them.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
