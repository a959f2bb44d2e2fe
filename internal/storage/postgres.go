package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/editactf/engine/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

// --- Users ---

// CreateUser inserts a new user account
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByEmail retrieves a user by email
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByID retrieves a user by id
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id", id)
}

func (r *PostgresRepository) getUser(ctx context.Context, field, value string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE %s = $1
	`, field)

	var u models.User
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// --- Profiles ---

// GetProfile retrieves a profile by user id
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, team_name, display_name, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var p models.Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.TeamName,
		&p.DisplayName,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// UpsertProfile inserts or updates a profile keyed by user id.
// Display-name uniqueness is enforced by a partial unique index.
func (r *PostgresRepository) UpsertProfile(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, team_name, display_name, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET team_name = EXCLUDED.team_name,
		    display_name = EXCLUDED.display_name,
		    updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, p.UserID, p.TeamName, p.DisplayName)
	if err != nil {
		if isUniqueViolation(err, "profiles_display_name_key") {
			return ErrDisplayNameTaken
		}
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// --- Teams ---

// CreateTeam inserts a new real team
func (r *PostgresRepository) CreateTeam(ctx context.Context, t *models.Team) error {
	query := `
		INSERT INTO teams (name, password_hash, created_by, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, t.Name, t.PasswordHash, t.CreatedBy, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrTeamExists
		}
		return fmt.Errorf("failed to create team: %w", err)
	}

	return nil
}

// GetTeam retrieves a team by name
func (r *PostgresRepository) GetTeam(ctx context.Context, name string) (*models.Team, error) {
	query := `
		SELECT name, password_hash, created_by, created_at
		FROM teams
		WHERE name = $1
	`

	var t models.Team
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&t.Name,
		&t.PasswordHash,
		&t.CreatedBy,
		&t.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return &t, nil
}

// ReassignSolves moves a user's historical solves to their new team for
// audit consistency. Rows that would collide with a solve the new team
// already holds are left in place.
func (r *PostgresRepository) ReassignSolves(ctx context.Context, userID, teamName string) error {
	query := `
		UPDATE solves
		SET team_name = $1
		WHERE user_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM solves existing
			WHERE existing.team_name = $1
			  AND existing.challenge_id = solves.challenge_id
		  )
	`

	_, err := r.pool.Exec(ctx, query, teamName, userID)
	if err != nil {
		return fmt.Errorf("failed to reassign solves: %w", err)
	}

	return nil
}

// --- Solves ---

// InsertSolveIfAbsent records a point-bearing solve if the team has none for
// this challenge. The (team_name, challenge_id) primary key plus ON CONFLICT
// DO NOTHING makes this a single atomic check-and-insert; the returned bool
// is true when points were actually awarded. The per-user solve record is
// kept regardless, also conflict-tolerant.
func (r *PostgresRepository) InsertSolveIfAbsent(ctx context.Context, s *models.Solve) (bool, error) {
	query := `
		INSERT INTO solves (team_name, challenge_id, user_id, points, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_name, challenge_id) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		s.TeamName,
		s.ChallengeID,
		s.UserID,
		s.Points,
		s.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert solve: %w", err)
	}

	userQuery := `
		INSERT INTO user_solves (user_id, challenge_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, challenge_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, userQuery, s.UserID, s.ChallengeID, s.CreatedAt); err != nil {
		return false, fmt.Errorf("failed to insert user solve: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// UserSolvedIDs returns the challenge ids a user has personally solved
func (r *PostgresRepository) UserSolvedIDs(ctx context.Context, userID string) ([]string, error) {
	return r.solvedIDs(ctx, `SELECT challenge_id FROM user_solves WHERE user_id = $1 ORDER BY created_at`, userID)
}

// TeamSolvedIDs returns the challenge ids a team has solved
func (r *PostgresRepository) TeamSolvedIDs(ctx context.Context, teamName string) ([]string, error) {
	return r.solvedIDs(ctx, `SELECT challenge_id FROM solves WHERE team_name = $1 ORDER BY created_at`, teamName)
}

func (r *PostgresRepository) solvedIDs(ctx context.Context, query, key string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query solved ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan solved id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// TeamScore returns the sum of points awarded to a team
func (r *PostgresRepository) TeamScore(ctx context.Context, teamName string) (int, error) {
	query := `SELECT COALESCE(SUM(points), 0) FROM solves WHERE team_name = $1`

	var score int
	if err := r.pool.QueryRow(ctx, query, teamName).Scan(&score); err != nil {
		return 0, fmt.Errorf("failed to get team score: %w", err)
	}

	return score, nil
}

// --- Public aggregates ---

// Leaderboard returns ranked real teams with at least one solve, ordered by
// score descending then earliest first solve. Guest buckets never join the
// teams table, so they are excluded structurally rather than by name.
func (r *PostgresRepository) Leaderboard(ctx context.Context) ([]models.LeaderboardRow, error) {
	query := `
		SELECT t.name, COALESCE(SUM(s.points), 0) AS score, COUNT(s.challenge_id) AS solves
		FROM teams t
		JOIN solves s ON s.team_name = t.name
		GROUP BY t.name
		ORDER BY score DESC, MIN(s.created_at) ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []models.LeaderboardRow
	for rows.Next() {
		var row models.LeaderboardRow
		if err := rows.Scan(&row.Team, &row.Score, &row.Solves); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		row.Rank = len(board) + 1
		board = append(board, row)
	}

	return board, rows.Err()
}

// ListTeams returns all real teams with member counts and scores
func (r *PostgresRepository) ListTeams(ctx context.Context) ([]models.TeamsRow, error) {
	query := `
		SELECT t.name,
		       COUNT(DISTINCT p.user_id) AS members,
		       COALESCE((SELECT SUM(points) FROM solves s WHERE s.team_name = t.name), 0) AS score
		FROM teams t
		LEFT JOIN profiles p ON p.team_name = t.name AND p.display_name <> ''
		GROUP BY t.name
		ORDER BY score DESC, t.name ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []models.TeamsRow
	for rows.Next() {
		var row models.TeamsRow
		if err := rows.Scan(&row.Name, &row.Members, &row.Score); err != nil {
			return nil, fmt.Errorf("failed to scan teams row: %w", err)
		}
		teams = append(teams, row)
	}

	return teams, rows.Err()
}
