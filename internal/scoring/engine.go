// Package scoring decides the outcome of a flag submission. The engine is
// the only code path that compares submitted flags against secrets and the
// only writer of solve rows, so every award funnels through one place.
package scoring

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/ratelimit"
)

// flagPattern is the only accepted submission shape. Anything else is
// rejected before touching storage or the rate limiter.
var flagPattern = regexp.MustCompile(`^editaCTF\{[^}]*\}$`)

// ValidFormat reports whether raw looks like a flag at all.
func ValidFormat(raw string) bool {
	return flagPattern.MatchString(raw)
}

// ProfileStore is the slice of storage the engine needs for identity checks
// and the guest-bucket upgrade.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
}

// SolveStore records solves. InsertSolveIfAbsent must be atomic: exactly one
// of any number of concurrent calls for the same (team, challenge) pair
// reports true.
type SolveStore interface {
	InsertSolveIfAbsent(ctx context.Context, solve *models.Solve) (bool, error)
}

// SecretSource exposes the answer key. It is never handed to command
// handlers or transport code.
type SecretSource interface {
	SecretFlag(id string) (string, bool)
	Points(id string) (int, bool)
}

// Engine runs the submission pipeline.
type Engine struct {
	profiles ProfileStore
	solves   SolveStore
	secrets  SecretSource
	limiter  ratelimit.Limiter
	logger   *slog.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(profiles ProfileStore, solves SolveStore, secrets SecretSource, limiter ratelimit.Limiter, logger *slog.Logger) *Engine {
	return &Engine{
		profiles: profiles,
		solves:   solves,
		secrets:  secrets,
		limiter:  limiter,
		logger:   logger,
	}
}

// Submit evaluates one flag submission for one user and returns a terminal
// state. It never returns a zero-state result without an error; any error is
// an infrastructure failure, not a verdict.
//
// Order matters: format and identity gates are free and come first, the rate
// limiter only charges submissions that reach the comparison stage's
// prerequisites, and the solve insert is last so no award can precede a
// correct comparison.
func (e *Engine) Submit(ctx context.Context, user *models.User, challengeID, flag string) (*models.SubmissionResult, error) {
	if !ValidFormat(flag) {
		return &models.SubmissionResult{
			State:   models.SubmissionFormatInvalid,
			Message: "Invalid flag format. Expected editaCTF{...}",
		}, nil
	}

	if user == nil {
		return &models.SubmissionResult{
			State:   models.SubmissionUnauthorized,
			Message: "Please register and login first to submit flags. Use 'auth register <email> <password>' then 'auth login <email> <password>'",
		}, nil
	}

	profile, err := e.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil || profile.DisplayName == "" {
		return &models.SubmissionResult{
			State:   models.SubmissionProfileIncomplete,
			Message: "Please set your display name first with 'profile name <your_name>' before submitting flags.",
		}, nil
	}

	allowed, err := e.limiter.Allow(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("rate limiter failure: %w", err)
	}
	if !allowed {
		e.logger.Warn("submission rate limited", "user_id", user.ID, "challenge_id", challengeID)
		return &models.SubmissionResult{
			State:   models.SubmissionRateLimited,
			Message: "Rate limit exceeded. Try again in a minute.",
		}, nil
	}

	secret, ok := e.secrets.SecretFlag(challengeID)
	if !ok {
		return &models.SubmissionResult{
			State:   models.SubmissionUnknownChallenge,
			Message: "Unknown challenge id.",
		}, nil
	}

	if subtle.ConstantTimeCompare([]byte(flag), []byte(secret)) != 1 {
		return &models.SubmissionResult{
			State:   models.SubmissionIncorrect,
			Correct: false,
			Message: "Incorrect flag. Keep trying!",
		}, nil
	}

	team, err := e.resolveTeam(ctx, user, profile)
	if err != nil {
		return nil, err
	}

	points, _ := e.secrets.Points(challengeID)
	awarded, err := e.solves.InsertSolveIfAbsent(ctx, &models.Solve{
		TeamName:    team.StorageName(),
		ChallengeID: challengeID,
		UserID:      user.ID,
		Points:      points,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record solve: %w", err)
	}

	if !awarded {
		return &models.SubmissionResult{
			State:   models.SubmissionAlreadySolved,
			Correct: true,
			Points:  points,
			Message: "Correct! You already solved this challenge.",
		}, nil
	}

	e.logger.Info("flag solved",
		"user_id", user.ID,
		"team", team.StorageName(),
		"challenge_id", challengeID,
		"points", points,
	)

	return &models.SubmissionResult{
		State:   models.SubmissionAwarded,
		Correct: true,
		Points:  points,
		Awarded: points,
		Message: "Correct! Points awarded to your team.",
	}, nil
}

// resolveTeam returns the team the solve is credited to. Users still riding
// the shared guest bucket are moved to their own individual guest team the
// first time they score. The upsert is convergent: every retry lands on the
// same deterministic team name, so concurrent submissions cannot diverge.
func (e *Engine) resolveTeam(ctx context.Context, user *models.User, profile *models.Profile) (models.TeamRef, error) {
	team := profile.Team()
	if team.Kind != models.TeamDefault {
		return team, nil
	}

	upgraded := models.IndividualTeam(user.ID)
	profile.TeamName = upgraded.StorageName()
	if err := e.profiles.UpsertProfile(ctx, profile); err != nil {
		return models.TeamRef{}, fmt.Errorf("failed to upgrade guest team: %w", err)
	}

	e.logger.Info("guest bucket upgraded", "user_id", user.ID, "team", profile.TeamName)
	return upgraded, nil
}
