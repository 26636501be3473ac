package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a unique constraint would be violated
var ErrAlreadyExists = errors.New("already exists")

// User represents a registered user. Groups is only populated by
// GetUserByTelegramID; list operations fill GroupsCount instead.
type User struct {
	ID          int64
	TelegramID  int64
	Username    string
	FirstName   string
	LastName    string
	IsActivated bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	GroupsCount int
	Groups      []GroupRef
}

// GroupRef is a shallow reference to a group a user belongs to
type GroupRef struct {
	ID          int64
	Name        string
	Description string
}

// Group represents a named collection of users. Users is only populated
// by GetGroupByID and GetGroupByName; list operations fill UsersCount.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UsersCount  int
	Users       []User
}

// NewUser holds the parameters for creating a user
type NewUser struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// NewGroup holds the parameters for creating a group. UserIDs are
// Telegram IDs; unknown IDs are skipped rather than failing the create.
type NewGroup struct {
	Name        string
	Description string
	UserIDs     []int64
}

// Store defines the persistence interface for users and groups
type Store interface {
	// CreateUser creates a user. Returns ErrAlreadyExists if a user with
	// the same Telegram ID is already registered.
	CreateUser(ctx context.Context, u NewUser) (*User, error)

	// ListUsers returns all users with their group membership counts.
	ListUsers(ctx context.Context) ([]User, error)

	// GetUserByTelegramID returns a user with their groups, or ErrNotFound.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)

	// CreateGroup creates a group and attaches any of the given users that
	// exist. UsersCount on the result reports how many were attached.
	// Returns ErrAlreadyExists if the group name is taken.
	CreateGroup(ctx context.Context, g NewGroup) (*Group, error)

	// DeleteGroup removes a group and its memberships. Returns ErrNotFound
	// if no such group exists.
	DeleteGroup(ctx context.Context, groupID int64) error

	// AddUserToGroup adds a user to a group. Adding an existing member is
	// a no-op. Returns ErrNotFound if the group or user does not exist.
	AddUserToGroup(ctx context.Context, groupID, telegramID int64) error

	// RemoveUserFromGroup removes a user from a group. Returns ErrNotFound
	// if the group or user does not exist, or the user is not a member.
	RemoveUserFromGroup(ctx context.Context, groupID, telegramID int64) error

	// ListGroups returns all groups with their member counts.
	ListGroups(ctx context.Context) ([]Group, error)

	// GetGroupByID returns a group with its members, or ErrNotFound.
	GetGroupByID(ctx context.Context, groupID int64) (*Group, error)

	// GetGroupByName returns a group with its members, or ErrNotFound.
	GetGroupByName(ctx context.Context, name string) (*Group, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying database resources.
	Close() error
}
