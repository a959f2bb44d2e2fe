package vfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/editactf/engine/internal/models"
)

var (
	// ErrIsDirectory is returned when reading a directory node.
	ErrIsDirectory = errors.New("is a directory")
	// ErrNoContent is returned for a file node with neither inline content
	// nor a source URL.
	ErrNoContent = errors.New("no content")
)

// Source fetches deferred file content by source URL. Fetched content is
// cached only for the duration of the command, never persisted into the tree.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Build constructs the virtual filesystem tree from the flat challenge
// catalog: static files at root plus a /challenges subtree grouped by
// category then challenge id, in catalog order. The tree is rebuilt wholesale
// on every reload; there is no incremental mutation.
func Build(challenges []models.Challenge, rules string) *models.FsNode {
	root := &models.FsNode{Name: "/", Path: "/", Type: models.NodeDir}

	root.Children = append(root.Children,
		&models.FsNode{
			Name:      "rules.txt",
			Path:      "/rules.txt",
			Type:      models.NodeFile,
			Mime:      "text/plain",
			SourceURL: "/api/v1/rules",
			Content:   rules,
		},
		&models.FsNode{
			Name:      "leaderboard.json",
			Path:      "/leaderboard.json",
			Type:      models.NodeFile,
			Mime:      "application/json",
			SourceURL: "/api/v1/leaderboard",
		},
		&models.FsNode{
			Name:      "teams.json",
			Path:      "/teams.json",
			Type:      models.NodeFile,
			Mime:      "application/json",
			SourceURL: "/api/v1/teams",
		},
	)

	challengesDir := &models.FsNode{Name: "challenges", Path: "/challenges", Type: models.NodeDir}

	categoryDirs := make(map[string]*models.FsNode)
	for _, c := range challenges {
		catDir, ok := categoryDirs[c.Category]
		if !ok {
			catDir = &models.FsNode{
				Name: c.Category,
				Path: "/challenges/" + c.Category,
				Type: models.NodeDir,
			}
			categoryDirs[c.Category] = catDir
			challengesDir.Children = append(challengesDir.Children, catDir)
		}

		chDir := &models.FsNode{
			Name: c.ID,
			Path: catDir.Path + "/" + c.ID,
			Type: models.NodeDir,
		}
		chDir.Children = append(chDir.Children,
			&models.FsNode{
				Name:    "README.md",
				Path:    chDir.Path + "/README.md",
				Type:    models.NodeFile,
				Mime:    "text/markdown",
				Content: readme(c),
			},
			&models.FsNode{
				Name:      "challenge.json",
				Path:      chDir.Path + "/challenge.json",
				Type:      models.NodeFile,
				Mime:      "application/json",
				SourceURL: "/api/v1/challenges?id=" + c.ID,
			},
			&models.FsNode{
				Name:      "hint.txt",
				Path:      chDir.Path + "/hint.txt",
				Type:      models.NodeFile,
				Mime:      "text/plain",
				SourceURL: "/api/v1/challenges?hint=" + c.ID,
			},
		)
		catDir.Children = append(catDir.Children, chDir)
	}

	root.Children = append(root.Children, challengesDir)
	return root
}

func readme(c models.Challenge) string {
	lines := []string{
		"# " + c.Name,
		"",
		"ID: " + c.ID,
		"Category: " + c.Category,
		fmt.Sprintf("Points: %d", c.Points),
		"Difficulty: " + c.Difficulty,
		"",
		fmt.Sprintf("Use 'challenge %s' to view full details and files.", c.ID),
		fmt.Sprintf("Use 'hint %s' to reveal a hint.", c.ID),
		fmt.Sprintf("Submit with: %s editaCTF{your_flag_here}", c.ID),
	}
	return strings.Join(lines, "\n")
}

// SplitPath splits a normalized absolute path into segments.
func SplitPath(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins segments into a normalized absolute path.
func JoinPath(segments []string) string {
	var nonEmpty []string
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return "/" + strings.Join(nonEmpty, "/")
}

// Resolve walks an absolute path from root. The boolean result is false when
// any intermediate segment is missing or not a directory; resolution never
// fails with an error.
func Resolve(root *models.FsNode, path string) (*models.FsNode, bool) {
	if root == nil {
		return nil, false
	}
	cur := root
	for _, part := range SplitPath(path) {
		next := cur.Child(part)
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// List returns the ordered child names of a directory, dirs suffixed with a
// slash. A file node lists as itself.
func List(node *models.FsNode) []string {
	if node == nil {
		return nil
	}
	if node.Type == models.NodeFile {
		return []string{node.Name}
	}
	names := make([]string, 0, len(node.Children))
	for _, c := range node.Children {
		if c.IsDir() {
			names = append(names, c.Name+"/")
		} else {
			names = append(names, c.Name)
		}
	}
	return names
}

// ReadContent returns a file node's text: inline content immediately,
// otherwise a fetch against the source URL decoded by declared mime
// (structured data is pretty-printed). Directories and contentless nodes
// return typed errors.
func ReadContent(ctx context.Context, src Source, node *models.FsNode) (string, error) {
	if node == nil {
		return "", ErrNoContent
	}
	if node.IsDir() {
		return "", ErrIsDirectory
	}
	if node.Content != "" {
		return node.Content, nil
	}
	if node.SourceURL == "" {
		return "", ErrNoContent
	}
	if src == nil {
		return "", fmt.Errorf("read %s: %w", node.Path, ErrNoContent)
	}

	data, err := src.Fetch(ctx, node.SourceURL)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", node.Path, err)
	}

	if strings.HasPrefix(node.Mime, "text/") {
		return string(data), nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("read %s: %w", node.Path, err)
	}
	return buf.String(), nil
}
