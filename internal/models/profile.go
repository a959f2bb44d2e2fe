package models

import "time"

// User is an authenticated account. PasswordHash is bcrypt and never
// serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the per-user display name and team attribution. TeamName is
// never empty: a fresh profile is assigned an individual guest bucket.
type Profile struct {
	UserID      string    `json:"user_id"`
	TeamName    string    `json:"team_name"`
	DisplayName string    `json:"display_name,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Team returns the tagged team reference for this profile.
func (p *Profile) Team() TeamRef {
	return ParseTeamName(p.TeamName)
}

// Solve is a recorded (team, challenge) association. At most one point-bearing
// solve exists per pair; Points carries the challenge's full value.
type Solve struct {
	TeamName    string    `json:"team_name"`
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Points      int       `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is the read-optimized identity projection returned by the summary
// endpoint. It is authoritative-but-stale-tolerant: staleness only affects
// display, never authorization.
type Summary struct {
	Team          string   `json:"team"`
	DisplayName   string   `json:"display_name,omitempty"`
	TeamScore     int      `json:"teamScore"`
	TeamSolvedIDs []string `json:"teamSolvedIds"`
	UserSolvedIDs []string `json:"userSolvedIds"`
}
