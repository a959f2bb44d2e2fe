package shell

import (
	"sort"
	"strings"

	"github.com/editactf/engine/internal/vfs"
)

// Complete implements tab completion for one input line. It returns the
// (possibly extended) line and, when the prefix stays ambiguous, the sorted
// candidates to display. A unique match is inserted with a trailing space;
// an ambiguous prefix is only ever extended by the longest common prefix of
// the matches.
func (in *Interpreter) Complete(line string) (string, []string) {
	sp := strings.LastIndexByte(line, ' ')
	if sp < 0 {
		return in.completeWord(line, "", in.firstWordUniverse())
	}

	head, prefix := line[:sp+1], line[sp+1:]
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return line, nil
	}
	return in.completeWord(prefix, head, in.argUniverse(fields, prefix))
}

func (in *Interpreter) completeWord(prefix, head string, universe []string) (string, []string) {
	var matches []string
	for _, w := range universe {
		if strings.HasPrefix(w, prefix) {
			matches = append(matches, w)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return head + prefix, nil
	case 1:
		return head + matches[0] + " ", nil
	}

	lcp := matches[0]
	for _, m := range matches[1:] {
		for !strings.HasPrefix(m, lcp) {
			lcp = lcp[:len(lcp)-1]
		}
	}
	if len(lcp) < len(prefix) {
		lcp = prefix
	}
	return head + lcp, matches
}

// firstWordUniverse is every command name plus every challenge id, since a
// line may start with either a command or an ambient flag submission.
func (in *Interpreter) firstWordUniverse() []string {
	words := in.commandNames()
	for _, c := range in.backend.Challenges() {
		words = append(words, c.ID)
	}
	return words
}

// argUniverse picks the completion vocabulary for an argument position based
// on the command being typed.
func (in *Interpreter) argUniverse(fields []string, prefix string) []string {
	switch fields[0] {
	case "ls", "cd", "cat", "open":
		return in.pathUniverse(prefix)
	case "challenge", "hint":
		var ids []string
		for _, c := range in.backend.Challenges() {
			ids = append(ids, c.ID)
		}
		return ids
	case "team":
		if len(fields) == 1 {
			return []string{"create", "join", "leave", "show"}
		}
	case "profile":
		if len(fields) == 1 {
			return []string{"name", "show"}
		}
	case "auth":
		if len(fields) == 1 {
			return []string{"register", "login", "logout", "me"}
		}
	}
	return nil
}

// pathUniverse lists the entries of the directory the partial path points
// into, each candidate carrying the partial's directory prefix so it can
// replace the word wholesale. Directory candidates keep their trailing
// slash, which lets repeated completion descend the tree.
func (in *Interpreter) pathUniverse(prefix string) []string {
	dirPrefix := ""
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		dirPrefix = prefix[:i+1]
	}

	node, ok := vfs.Resolve(in.backend.Root(), in.resolvePath(dirPrefix))
	if !ok || !node.IsDir() {
		return nil
	}

	var words []string
	for _, child := range node.Children {
		name := child.Name
		if child.IsDir() {
			name += "/"
		}
		words = append(words, dirPrefix+name)
	}
	return words
}
