// Package sessionstate holds the per-connection view of who the player is
// and what their team has solved. One Facade backs one terminal session.
package sessionstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/editactf/engine/internal/models"
)

// SummarySource recomputes a player summary from persistent state. user may
// be nil for an anonymous session, in which case the shared guest bucket is
// summarized.
type SummarySource interface {
	Summary(ctx context.Context, user *models.User) (*models.Summary, error)
}

// Facade is the single mutable object a terminal session reads its identity
// and score state through. All command handlers consult it instead of
// touching storage directly, so a session sees one consistent snapshot
// between refreshes.
type Facade struct {
	mu      sync.RWMutex
	source  SummarySource
	user    *models.User
	token   string
	summary *models.Summary
}

// NewFacade creates an anonymous session facade.
func NewFacade(source SummarySource) *Facade {
	return &Facade{source: source}
}

// User returns the authenticated user, or nil for an anonymous session.
func (f *Facade) User() *models.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.user
}

// Token returns the session's bearer token, empty when anonymous.
func (f *Facade) Token() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token
}

// Authenticated reports whether the session has a signed-in user.
func (f *Facade) Authenticated() bool {
	return f.User() != nil
}

// SetAuth switches the session to an authenticated user. Any cached summary
// belongs to the previous identity and is dropped.
func (f *Facade) SetAuth(user *models.User, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
	f.token = token
	f.summary = nil
}

// ClearAuth returns the session to the anonymous guest state.
func (f *Facade) ClearAuth() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = nil
	f.token = ""
	f.summary = nil
}

// Summary returns the cached player summary, nil when none has been loaded
// or the last refresh failed.
func (f *Facade) Summary() *models.Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.summary
}

// Team returns the session's team reference. It falls back to the shared
// guest bucket for anonymous sessions with no cached summary, and to the
// individual guest team for authenticated ones.
func (f *Facade) Team() models.TeamRef {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.summary != nil {
		return models.ParseTeamName(f.summary.Team)
	}
	if f.user != nil {
		return models.IndividualTeam(f.user.ID)
	}
	return models.DefaultTeam()
}

// DisplayName returns the player's display name, empty when unset.
func (f *Facade) DisplayName() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.summary == nil {
		return ""
	}
	return f.summary.DisplayName
}

// Refresh recomputes the summary from the source. The freshest result wins;
// a failed refresh clears the cache rather than serving stale state.
func (f *Facade) Refresh(ctx context.Context) error {
	f.mu.RLock()
	user := f.user
	f.mu.RUnlock()

	summary, err := f.source.Summary(ctx, user)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user != user {
		// Identity changed while we were fetching; the result is stale.
		return nil
	}
	if err != nil {
		f.summary = nil
		return fmt.Errorf("failed to refresh session summary: %w", err)
	}
	f.summary = summary
	return nil
}
