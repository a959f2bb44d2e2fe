package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/editactf/engine/internal/models"
)

// DefaultRules is served when the catalog directory carries no rules.txt.
const DefaultRules = `EditaCTF Rules
----------------
1. Be respectful. No harassment or abuse.
2. No sharing flags, brute force against infrastructure, or attacking other teams.
3. Automated scanning of the platform is prohibited.
4. One account per participant or team.
5. Flag format: editaCTF{...} unless stated otherwise.
6. Have fun and learn!

Contact organizers for issues.`

// challengeFile is the YAML schema of one catalog entry.
type challengeFile struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Points      int      `yaml:"points"`
	Difficulty  string   `yaml:"difficulty"`
	Daily       bool     `yaml:"daily"`
	Description string   `yaml:"description"`
	Files       []string `yaml:"files"`
	Hint        string   `yaml:"hint"`
	Flag        string   `yaml:"flag"`
}

// entry keeps the public challenge together with its server-only secrets.
type entry struct {
	challenge models.Challenge
	hint      string
	flag      string
}

// Loader manages loading and caching of the challenge catalog. Listing order
// is the catalog's ordering contract: categories in first-seen order,
// challenges ascending by points within a category.
type Loader struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ordered []string // challenge ids in listing order
	rules   string
}

// NewLoader creates an empty catalog loader
func NewLoader() *Loader {
	return &Loader{
		entries: make(map[string]*entry),
		rules:   DefaultRules,
	}
}

// LoadFromDir loads all YAML challenge files from a directory (flat and one
// level of subdirectories), plus an optional rules.txt.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading challenge catalog", "dir", dir)

	patterns := []string{"*.yaml", "*.yml"}
	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		files = append(files, subMatches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load challenge", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("challenge catalog loaded", "count", loaded, "total_files", len(files))

	if data, err := os.ReadFile(filepath.Join(dir, "rules.txt")); err == nil {
		l.mu.Lock()
		l.rules = string(data)
		l.mu.Unlock()
	}

	l.reorder()
	return nil
}

// LoadFromFile loads a single challenge from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var cf challengeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cf.ID == "" {
		return fmt.Errorf("challenge id is required")
	}
	if cf.Category == "" {
		return fmt.Errorf("challenge category is required")
	}
	if cf.Flag == "" {
		return fmt.Errorf("challenge flag is required")
	}
	if cf.Points <= 0 {
		return fmt.Errorf("challenge points must be positive")
	}

	e := &entry{
		challenge: models.Challenge{
			ID:          cf.ID,
			Name:        cf.Name,
			Category:    cf.Category,
			Points:      cf.Points,
			Difficulty:  cf.Difficulty,
			Daily:       cf.Daily,
			Description: cf.Description,
			Files:       cf.Files,
		},
		hint: cf.Hint,
		flag: cf.Flag,
	}

	l.mu.Lock()
	if _, exists := l.entries[cf.ID]; !exists {
		l.ordered = append(l.ordered, cf.ID)
	}
	l.entries[cf.ID] = e
	l.mu.Unlock()

	return nil
}

// reorder rebuilds the listing order: category first-seen order, then points
// ascending within a category.
func (l *Loader) reorder() {
	l.mu.Lock()
	defer l.mu.Unlock()

	categoryRank := make(map[string]int)
	for _, id := range l.ordered {
		cat := l.entries[id].challenge.Category
		if _, seen := categoryRank[cat]; !seen {
			categoryRank[cat] = len(categoryRank)
		}
	}

	sort.SliceStable(l.ordered, func(i, j int) bool {
		a := l.entries[l.ordered[i]].challenge
		b := l.entries[l.ordered[j]].challenge
		if categoryRank[a.Category] != categoryRank[b.Category] {
			return categoryRank[a.Category] < categoryRank[b.Category]
		}
		return a.Points < b.Points
	})
}

// List returns all challenges in catalog order.
func (l *Loader) List() []models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Challenge, 0, len(l.ordered))
	for _, id := range l.ordered {
		out = append(out, l.entries[id].challenge)
	}
	return out
}

// Get returns the public challenge with the given id.
func (l *Loader) Get(id string) (models.Challenge, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return models.Challenge{}, false
	}
	return e.challenge, true
}

// Hint returns the hint for the given challenge id.
func (l *Loader) Hint(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return "", false
	}
	return e.hint, true
}

// SecretFlag returns the server-only flag for the given challenge id. Only
// the scoring engine may call this; the value never reaches a public
// endpoint or the interpreter.
func (l *Loader) SecretFlag(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return "", false
	}
	return e.flag, true
}

// Points returns the nominal point value for the given challenge id.
func (l *Loader) Points(id string) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return 0, false
	}
	return e.challenge.Points, true
}

// Rules returns the competition rules text.
func (l *Loader) Rules() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules
}

// Len returns the number of loaded challenges.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
