package storage

import (
	"context"
	"errors"

	"github.com/editactf/engine/internal/models"
)

var (
	// ErrTeamExists is returned when creating a team whose name is taken.
	ErrTeamExists = errors.New("team already exists")
	// ErrEmailTaken is returned when registering an email that exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrDisplayNameTaken is returned when upserting a profile with a
	// display name another user holds.
	ErrDisplayNameTaken = errors.New("display name already taken")
	// ErrTeamNotFound is returned when joining a team that does not exist.
	ErrTeamNotFound = errors.New("team not found")
)

// Repository defines the persistence interface for the CTF engine.
// Lookups return (nil, nil) when the entity does not exist.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Profiles
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error

	// Teams
	CreateTeam(ctx context.Context, t *models.Team) error
	GetTeam(ctx context.Context, name string) (*models.Team, error)
	ReassignSolves(ctx context.Context, userID, teamName string) error

	// Solves. InsertSolveIfAbsent is the single atomic award primitive:
	// it reports whether a new point-bearing row was created for the
	// (team, challenge) pair.
	InsertSolveIfAbsent(ctx context.Context, s *models.Solve) (bool, error)
	UserSolvedIDs(ctx context.Context, userID string) ([]string, error)
	TeamSolvedIDs(ctx context.Context, teamName string) ([]string, error)
	TeamScore(ctx context.Context, teamName string) (int, error)

	// Public aggregates (real teams only)
	Leaderboard(ctx context.Context) ([]models.LeaderboardRow, error)
	ListTeams(ctx context.Context) ([]models.TeamsRow, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
