package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/isdmx/groupbox/config"
)

// PostgresStore implements the Store interface using PostgreSQL via
// the pgx database/sql driver.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		is_activated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id);

	CREATE TABLE IF NOT EXISTS groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_groups_name ON groups(name);

	CREATE TABLE IF NOT EXISTS group_users (
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, user_id)
	);
`

// postgresDSN builds the connection URL. The userinfo section has its own
// escaping rules, so the credentials go through url.UserPassword rather
// than query escaping.
func postgresDSN(pg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(pg.User, pg.Password),
		Host:   fmt.Sprintf("%s:%d", pg.Host, pg.Port),
		Path:   "/" + pg.Database,
	}
	return u.String()
}

// NewPostgresStore connects to PostgreSQL using the given connection
// parameters and creates the schema if it doesn't exist.
func NewPostgresStore(logger *zap.Logger, pg config.PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("pgx", postgresDSN(pg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", pg.Host, pg.Port, err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("postgres store initialized",
		zap.String("host", pg.Host),
		zap.String("database", pg.Database))
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE telegram_id = $1`, u.TelegramID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("user with telegram_id %d: %w", u.TelegramID, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking user: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.TelegramID, nullString(u.Username), nullString(u.FirstName), nullString(u.LastName), now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
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

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
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
		user, err := scanPgUserRow(rows)
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

func (s *PostgresStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name,
		       u.is_activated, u.created_at, u.updated_at, COUNT(gu.group_id)
		FROM users u
		LEFT JOIN group_users gu ON gu.user_id = u.id
		WHERE u.telegram_id = $1
		GROUP BY u.id`, telegramID)

	user, err := scanPgUserRow(row)
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
		WHERE gu.user_id = $1
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

func (s *PostgresStore) CreateGroup(ctx context.Context, g NewGroup) (*Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = $1`, g.Name).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("group with name '%s': %w", g.Name, ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking group: %w", err)
	}

	now := time.Now().UTC()
	var groupID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO groups (name, description, created_at) VALUES ($1, $2, $3) RETURNING id`,
		g.Name, nullString(g.Description), now).Scan(&groupID)
	if err != nil {
		return nil, fmt.Errorf("inserting group: %w", err)
	}

	attached := 0
	for _, telegramID := range g.UserIDs {
		var userID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&userID)
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
			`INSERT INTO group_users (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
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

func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
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
	s.logger.Info("group deleted", zap.Int64("id", groupID))
	return nil
}

func (s *PostgresStore) AddUserToGroup(ctx context.Context, groupID, telegramID int64) error {
	userID, err := s.resolveMembership(ctx, groupID, telegramID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO group_users (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID); err != nil {
		return fmt.Errorf("adding user to group: %w", err)
	}
	s.logger.Info("user added to group",
		zap.Int64("group_id", groupID),
		zap.Int64("telegram_id", telegramID))
	return nil
}

func (s *PostgresStore) RemoveUserFromGroup(ctx context.Context, groupID, telegramID int64) error {
	userID, err := s.resolveMembership(ctx, groupID, telegramID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_users WHERE group_id = $1 AND user_id = $2`, groupID, userID)
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

func (s *PostgresStore) resolveMembership(ctx context.Context, groupID, telegramID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM groups WHERE id = $1`, groupID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("group with id %d: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up group: %w", err)
	}

	var userID int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user with telegram_id %d: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up user: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context) ([]Group, error) {
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
		group, err := scanPgGroupRow(rows)
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

func (s *PostgresStore) GetGroupByID(ctx context.Context, groupID int64) (*Group, error) {
	return s.getGroup(ctx, `WHERE g.id = $1`, groupID)
}

func (s *PostgresStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return s.getGroup(ctx, `WHERE g.name = $1`, name)
}

func (s *PostgresStore) getGroup(ctx context.Context, where string, arg any) (*Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at, COUNT(gu.user_id)
		FROM groups g
		LEFT JOIN group_users gu ON gu.group_id = g.id
		`+where+`
		GROUP BY g.id`, arg)

	group, err := scanPgGroupRow(row)
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
		WHERE gu.group_id = $1
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanPgUserRow scans a user row with a trailing group count. Postgres
// timestamps scan natively into time.Time.
func scanPgUserRow(r rowScanner) (*User, error) {
	var user User
	var username, firstName, lastName sql.NullString
	var updatedAt sql.NullTime

	err := r.Scan(&user.ID, &user.TelegramID, &username, &firstName, &lastName,
		&user.IsActivated, &user.CreatedAt, &updatedAt, &user.GroupsCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

// scanPgGroupRow scans a group row with a trailing user count
func scanPgGroupRow(r rowScanner) (*Group, error) {
	var group Group
	var description sql.NullString
	var updatedAt sql.NullTime

	err := r.Scan(&group.ID, &group.Name, &description, &group.CreatedAt, &updatedAt, &group.UsersCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning group: %w", err)
	}

	group.Description = description.String
	group.UpdatedAt = updatedAt.Time
	return &group, nil
}
