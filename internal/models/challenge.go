package models

// Challenge is the public view of a catalog entry. The secret flag is held
// by the catalog loader and never leaves the server boundary.
type Challenge struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Points      int      `json:"points"`
	Difficulty  string   `json:"difficulty"` // easy | medium | hard
	Daily       bool     `json:"daily,omitempty"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// ChallengeSummary is the listing projection (no description or files).
type ChallengeSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Points     int    `json:"points"`
	Difficulty string `json:"difficulty"`
	Daily      bool   `json:"daily"`
}

// Summarize strips a challenge down to its listing fields.
func (c *Challenge) Summarize() ChallengeSummary {
	return ChallengeSummary{
		ID:         c.ID,
		Name:       c.Name,
		Category:   c.Category,
		Points:     c.Points,
		Difficulty: c.Difficulty,
		Daily:      c.Daily,
	}
}
