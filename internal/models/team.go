package models

import (
	"strings"
	"time"
)

// TeamKind classifies the three team flavors. Only named teams are eligible
// for the public leaderboard.
type TeamKind int

const (
	// TeamDefault is the shared guest bucket every fresh identity starts in.
	// It must never accumulate solves.
	TeamDefault TeamKind = iota
	// TeamIndividual is a per-user guest bucket (solo play, not on the
	// leaderboard).
	TeamIndividual
	// TeamNamed is a real, password-protected team.
	TeamNamed
)

const (
	defaultTeamName      = "guest"
	individualTeamPrefix = "guest_"
)

// TeamRef is a tagged reference to a team. All conversion between the stored
// string form and the variant lives here so that no other package sniffs
// string prefixes.
type TeamRef struct {
	Kind   TeamKind
	UserID string // set for TeamIndividual
	Name   string // set for TeamNamed
}

// DefaultTeam returns the shared guest bucket reference.
func DefaultTeam() TeamRef {
	return TeamRef{Kind: TeamDefault}
}

// IndividualTeam returns the per-user guest bucket for userID.
func IndividualTeam(userID string) TeamRef {
	return TeamRef{Kind: TeamIndividual, UserID: userID}
}

// NamedTeam returns a reference to a real team.
func NamedTeam(name string) TeamRef {
	return TeamRef{Kind: TeamNamed, Name: name}
}

// ParseTeamName converts a stored team_name into a TeamRef.
func ParseTeamName(raw string) TeamRef {
	switch {
	case raw == "" || raw == defaultTeamName:
		return DefaultTeam()
	case strings.HasPrefix(raw, individualTeamPrefix):
		return IndividualTeam(strings.TrimPrefix(raw, individualTeamPrefix))
	default:
		return NamedTeam(raw)
	}
}

// ReservedTeamName reports whether name collides with the guest-bucket
// naming convention and therefore may not be used for a real team.
func ReservedTeamName(name string) bool {
	return name == defaultTeamName || strings.HasPrefix(name, individualTeamPrefix)
}

// StorageName returns the string form persisted in profiles and solves.
func (t TeamRef) StorageName() string {
	switch t.Kind {
	case TeamIndividual:
		return individualTeamPrefix + t.UserID
	case TeamNamed:
		return t.Name
	default:
		return defaultTeamName
	}
}

// DisplayName is the human-facing team label shown in the terminal.
func (t TeamRef) DisplayName() string {
	switch t.Kind {
	case TeamIndividual:
		return "individual"
	case TeamNamed:
		return t.Name
	default:
		return defaultTeamName
	}
}

// IsReal reports whether the team is leaderboard-eligible.
func (t TeamRef) IsReal() bool {
	return t.Kind == TeamNamed
}

// Team is a persisted real team.
type Team struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// LeaderboardRow is one ranked entry of the public leaderboard.
type LeaderboardRow struct {
	Rank   int    `json:"rank"`
	Team   string `json:"team"`
	Score  int    `json:"score"`
	Solves int    `json:"solves"`
}

// TeamsRow is one entry of the public teams listing.
type TeamsRow struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
	Score   int    `json:"score"`
}
