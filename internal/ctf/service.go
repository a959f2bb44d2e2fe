// Package ctf wires the catalog, storage, auth, and scoring collaborators
// into the single backend every terminal session and API handler talks to.
package ctf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/editactf/engine/internal/auth"
	"github.com/editactf/engine/internal/catalog"
	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/scoring"
	"github.com/editactf/engine/internal/storage"
	"github.com/editactf/engine/internal/vfs"
)

var (
	// ErrInvalidDisplayName rejects display names outside 3-32 word
	// characters, spaces, dots, or dashes.
	ErrInvalidDisplayName = errors.New("invalid display name")
	// ErrInvalidTeamName rejects team names outside 3-32 lowercase
	// alphanumerics, ':', '_' or '-'.
	ErrInvalidTeamName = errors.New("invalid team name")
)

var (
	displayNamePattern = regexp.MustCompile(`^[\w .-]+$`)
	teamNamePattern    = regexp.MustCompile(`^[a-z0-9:_-]{3,32}$`)
)

// Service is the engine facade. The virtual filesystem snapshot is rebuilt
// wholesale on reload and swapped under the lock; readers always see a
// complete tree.
type Service struct {
	catalogDir string
	catalog    *catalog.Loader
	repo       storage.Repository
	engine     *scoring.Engine
	accounts   *auth.Service
	logger     *slog.Logger

	mu   sync.RWMutex
	root *models.FsNode
}

// NewService creates the service and builds the initial filesystem snapshot
// from the already-loaded catalog.
func NewService(catalogDir string, loader *catalog.Loader, repo storage.Repository, engine *scoring.Engine, accounts *auth.Service, logger *slog.Logger) *Service {
	s := &Service{
		catalogDir: catalogDir,
		catalog:    loader,
		repo:       repo,
		engine:     engine,
		accounts:   accounts,
		logger:     logger,
	}
	s.rebuild()
	return s
}

func (s *Service) rebuild() {
	root := vfs.Build(s.catalog.List(), s.catalog.Rules())
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
}

// Reload re-reads the catalog directory and swaps in a fresh filesystem
// snapshot.
func (s *Service) Reload(_ context.Context) error {
	if err := s.catalog.LoadFromDir(s.catalogDir); err != nil {
		return fmt.Errorf("failed to reload catalog: %w", err)
	}
	s.rebuild()
	s.logger.Info("catalog reloaded", "challenges", s.catalog.Len())
	return nil
}

// Root returns the current filesystem snapshot.
func (s *Service) Root() *models.FsNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// ReadContent reads a file node, resolving deferred content through the
// engine's own data instead of a network round trip.
func (s *Service) ReadContent(ctx context.Context, node *models.FsNode) (string, error) {
	return vfs.ReadContent(ctx, sourceFunc(s.fetch), node)
}

// Rules returns the competition rules text.
func (s *Service) Rules() string {
	return s.catalog.Rules()
}

// Challenges lists all challenges in catalog order.
func (s *Service) Challenges() []models.ChallengeSummary {
	list := s.catalog.List()
	out := make([]models.ChallengeSummary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summarize())
	}
	return out
}

// Challenge returns the full public view of one challenge.
func (s *Service) Challenge(id string) (*models.Challenge, bool) {
	c, ok := s.catalog.Get(id)
	if !ok {
		return nil, false
	}
	return &c, true
}

// Hint returns a challenge's hint.
func (s *Service) Hint(id string) (string, bool) {
	return s.catalog.Hint(id)
}

// FlagCandidates returns up to limit challenge ids in catalog order, used to
// suggest targets when a flag arrives without an id.
func (s *Service) FlagCandidates(limit int) []string {
	list := s.catalog.List()
	if len(list) > limit {
		list = list[:limit]
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}

// Leaderboard returns the ranked real-team standings.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardRow, error) {
	return s.repo.Leaderboard(ctx)
}

// Teams returns the public team listing.
func (s *Service) Teams(ctx context.Context) ([]models.TeamsRow, error) {
	return s.repo.ListTeams(ctx)
}

// Submit runs one flag submission through the scoring engine.
func (s *Service) Submit(ctx context.Context, user *models.User, challengeID, flag string) (*models.SubmissionResult, error) {
	return s.engine.Submit(ctx, user, challengeID, flag)
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	return s.accounts.Register(ctx, email, password)
}

// Login verifies credentials and returns a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	return s.accounts.Login(ctx, email, password)
}

// UserForToken resolves a bearer token.
func (s *Service) UserForToken(ctx context.Context, token string) (*models.User, error) {
	return s.accounts.UserForToken(ctx, token)
}

// SetDisplayName updates the user's display name, creating the profile if a
// legacy account somehow lacks one.
func (s *Service) SetDisplayName(ctx context.Context, user *models.User, name string) error {
	if len(name) < 3 || len(name) > 32 || !displayNamePattern.MatchString(name) {
		return ErrInvalidDisplayName
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &models.Profile{
			UserID:   user.ID,
			TeamName: models.IndividualTeam(user.ID).StorageName(),
		}
	}
	profile.DisplayName = name
	return s.repo.UpsertProfile(ctx, profile)
}

// CreateTeam registers a new team and moves the creator onto it. The user's
// individual solves follow them so earned points are not lost.
func (s *Service) CreateTeam(ctx context.Context, user *models.User, name, password string) error {
	if !teamNamePattern.MatchString(name) || models.ReservedTeamName(name) {
		return ErrInvalidTeamName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash team password: %w", err)
	}

	if err := s.repo.CreateTeam(ctx, &models.Team{
		Name:         name,
		PasswordHash: string(hash),
		CreatedBy:    user.ID,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}

	return s.moveToTeam(ctx, user, name)
}

// JoinTeam verifies the team password and moves the user onto the team.
func (s *Service) JoinTeam(ctx context.Context, user *models.User, name, password string) error {
	name = strings.ToLower(name)
	team, err := s.repo.GetTeam(ctx, name)
	if err != nil {
		return err
	}
	if team == nil {
		return storage.ErrTeamNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(team.PasswordHash), []byte(password)) != nil {
		return auth.ErrInvalidCredentials
	}
	return s.moveToTeam(ctx, user, team.Name)
}

// LeaveTeam drops the user back to their individual guest bucket. Solves
// already credited to the team stay with it; points are team property.
func (s *Service) LeaveTeam(ctx context.Context, user *models.User) error {
	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}
	profile.TeamName = models.IndividualTeam(user.ID).StorageName()
	return s.repo.UpsertProfile(ctx, profile)
}

func (s *Service) moveToTeam(ctx context.Context, user *models.User, teamName string) error {
	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &models.Profile{UserID: user.ID}
	}
	profile.TeamName = teamName
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return err
	}

	if err := s.repo.ReassignSolves(ctx, user.ID, teamName); err != nil {
		return fmt.Errorf("failed to carry solves to %s: %w", teamName, err)
	}
	return nil
}

// Summary computes the session view of a player. A nil user summarizes the
// shared guest bucket.
func (s *Service) Summary(ctx context.Context, user *models.User) (*models.Summary, error) {
	team := models.DefaultTeam()
	displayName := ""
	var userSolved []string

	if user != nil {
		profile, err := s.repo.GetProfile(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			team = profile.Team()
			displayName = profile.DisplayName
		} else {
			team = models.IndividualTeam(user.ID)
		}

		userSolved, err = s.repo.UserSolvedIDs(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	teamName := team.StorageName()
	teamSolved, err := s.repo.TeamSolvedIDs(ctx, teamName)
	if err != nil {
		return nil, err
	}
	score, err := s.repo.TeamScore(ctx, teamName)
	if err != nil {
		return nil, err
	}

	return &models.Summary{
		Team:          teamName,
		DisplayName:   displayName,
		TeamScore:     score,
		TeamSolvedIDs: teamSolved,
		UserSolvedIDs: userSolved,
	}, nil
}

// Export bundles a signed-in player's data as indented JSON.
func (s *Service) Export(ctx context.Context, user *models.User) (string, error) {
	summary, err := s.Summary(ctx, user)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"exported_at":     time.Now().UTC().Format(time.RFC3339),
		"email":           user.Email,
		"display_name":    summary.DisplayName,
		"team":            summary.Team,
		"team_score":      summary.TeamScore,
		"team_solved_ids": summary.TeamSolvedIDs,
		"user_solved_ids": summary.UserSolvedIDs,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(data), nil
}

// sourceFunc adapts a function to vfs.Source.
type sourceFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f sourceFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// fetch resolves a file node's source URL against the engine's own data.
// The URLs mirror the public API so the same tree works for a browser that
// follows them directly.
func (s *Service) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bad source url %q: %w", rawURL, err)
	}

	switch strings.TrimSuffix(u.Path, "/") {
	case "/api/v1/rules":
		return []byte(s.Rules()), nil

	case "/api/v1/leaderboard":
		rows, err := s.Leaderboard(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)

	case "/api/v1/teams":
		rows, err := s.Teams(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)

	case "/api/v1/challenges":
		if id := u.Query().Get("hint"); id != "" {
			hint, ok := s.catalog.Hint(id)
			if !ok {
				return nil, fmt.Errorf("unknown challenge %q", id)
			}
			if hint == "" {
				hint = "No hint available for this challenge."
			}
			return []byte(hint), nil
		}
		if id := u.Query().Get("id"); id != "" {
			c, ok := s.catalog.Get(id)
			if !ok {
				return nil, fmt.Errorf("unknown challenge %q", id)
			}
			return json.Marshal(c)
		}
		return nil, fmt.Errorf("bad challenge source url %q", rawURL)

	default:
		return nil, fmt.Errorf("unresolvable source url %q", rawURL)
	}
}
