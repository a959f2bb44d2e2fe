// Package shell implements the terminal command interpreter: line parsing,
// the command registry, history, tab completion, and the current-directory
// cursor over the virtual filesystem.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/sessionstate"
	"github.com/editactf/engine/internal/vfs"
)

// Ambient flag detection runs before command dispatch, so a player can paste
// a flag at the prompt without remembering a submit command.
var (
	bareFlagLine = regexp.MustCompile(`^editaCTF\{[^}]*\}$`)
	submitLine   = regexp.MustCompile(`^(\w[\w-]*)\s+(editaCTF\{[^}]*\})$`)
)

// Backend is everything the interpreter needs from the rest of the engine.
// It is deliberately coarse: one implementation backs every session.
type Backend interface {
	Root() *models.FsNode
	ReadContent(ctx context.Context, node *models.FsNode) (string, error)
	Rules() string
	Challenges() []models.ChallengeSummary
	Challenge(id string) (*models.Challenge, bool)
	Hint(id string) (string, bool)
	FlagCandidates(limit int) []string
	Leaderboard(ctx context.Context) ([]models.LeaderboardRow, error)
	Teams(ctx context.Context) ([]models.TeamsRow, error)
	Submit(ctx context.Context, user *models.User, challengeID, flag string) (*models.SubmissionResult, error)
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	SetDisplayName(ctx context.Context, user *models.User, name string) error
	CreateTeam(ctx context.Context, user *models.User, name, password string) error
	JoinTeam(ctx context.Context, user *models.User, name, password string) error
	LeaveTeam(ctx context.Context, user *models.User) error
	Export(ctx context.Context, user *models.User) (string, error)
	Reload(ctx context.Context) error
}

// Result is what one executed line produces. Clear asks the terminal to wipe
// its scrollback; OpenURL asks it to open the given resource in a new tab.
type Result struct {
	Output  string `json:"output,omitempty"`
	Clear   bool   `json:"clear,omitempty"`
	OpenURL string `json:"open_url,omitempty"`
}

type handlerFunc func(ctx context.Context, args []string) (Result, error)

type command struct {
	name    string
	usage   string
	summary string
	run     handlerFunc
}

// Interpreter is one terminal session's command processor. It owns the cwd
// cursor and history; identity lives in the session facade. Not safe for
// concurrent use; the transport serializes input per connection.
type Interpreter struct {
	backend  Backend
	session  *sessionstate.Facade
	history  *History
	cwd      []string
	commands map[string]*command
	order    []string
	logger   *slog.Logger
}

// NewInterpreter creates an interpreter rooted at /.
func NewInterpreter(backend Backend, session *sessionstate.Facade, logger *slog.Logger) *Interpreter {
	in := &Interpreter{
		backend: backend,
		session: session,
		history: NewHistory(),
		logger:  logger,
	}
	in.registerCommands()
	return in
}

// History exposes the session history for persistence and arrow-key
// navigation.
func (in *Interpreter) History() *History {
	return in.history
}

// Cwd returns the current working directory as an absolute path.
func (in *Interpreter) Cwd() string {
	return vfs.JoinPath(in.cwd)
}

// Prompt returns the terminal prompt for the current state.
func (in *Interpreter) Prompt() string {
	who := "guest"
	if name := in.session.DisplayName(); name != "" {
		who = name
	} else if user := in.session.User(); user != nil {
		who = user.Email
	}
	return fmt.Sprintf("%s@editactf:%s$ ", who, in.Cwd())
}

// Execute runs one input line and returns its result. Empty lines are a
// no-op and are not recorded in history. A panicking handler is contained
// here so one bad command cannot take down the terminal session.
func (in *Interpreter) Execute(ctx context.Context, line string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("command handler panicked", "line", line, "panic", r)
			res = Result{Output: "Something went wrong running that command."}
			err = nil
		}
	}()

	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}, nil
	}
	in.history.Add(line)

	if m := submitLine.FindStringSubmatch(line); m != nil {
		return in.submitFlag(ctx, m[1], m[2])
	}
	if bareFlagLine.MatchString(line) {
		return in.bareFlag(), nil
	}

	fields := strings.Fields(line)
	cmd, ok := in.commands[fields[0]]
	if !ok {
		return Result{Output: fmt.Sprintf("command not found: %s. Type 'help' to list available commands.", fields[0])}, nil
	}
	return cmd.run(ctx, fields[1:])
}

// submitFlag routes an ambient "<challenge-id> <flag>" line through the
// scoring pipeline and refreshes the session view on success.
func (in *Interpreter) submitFlag(ctx context.Context, challengeID, flag string) (Result, error) {
	res, err := in.backend.Submit(ctx, in.session.User(), challengeID, flag)
	if err != nil {
		in.logger.Error("flag submission failed", "error", err, "challenge_id", challengeID)
		return Result{Output: "Something went wrong while checking your flag. Try again."}, nil
	}

	out := res.Message
	if res.State == models.SubmissionAwarded {
		out = fmt.Sprintf("%s (+%d points)", res.Message, res.Points)
	}
	if res.Correct {
		if err := in.session.Refresh(ctx); err != nil {
			in.logger.Warn("session refresh after solve failed", "error", err)
		}
	}
	return Result{Output: out}, nil
}

// bareFlag handles a flag pasted without a challenge id: point the player at
// the submission syntax and a few likely targets. No scoring happens here.
func (in *Interpreter) bareFlag() Result {
	lines := []string{
		"That looks like a flag. Submit it against a challenge id:",
		"",
		"  <challenge-id> editaCTF{...}",
		"",
	}
	if candidates := in.backend.FlagCandidates(5); len(candidates) > 0 {
		lines = append(lines, "For example:")
		for _, id := range candidates {
			lines = append(lines, "  "+id+" editaCTF{...}")
		}
		lines = append(lines, "", "Run 'challenges' to see every id.")
	} else {
		lines = append(lines, "Run 'challenges' to see every id.")
	}
	return Result{Output: strings.Join(lines, "\n")}
}

// resolvePath turns a user-supplied path argument into a normalized absolute
// path, applying the cwd for relative paths and folding "." and "..".
func (in *Interpreter) resolvePath(arg string) string {
	var segments []string
	if !strings.HasPrefix(arg, "/") {
		segments = append(segments, in.cwd...)
	}
	for _, part := range vfs.SplitPath(arg) {
		switch part {
		case ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, part)
		}
	}
	return vfs.JoinPath(segments)
}

// rehome re-resolves the cwd against a freshly rebuilt tree, falling back to
// root when the directory no longer exists.
func (in *Interpreter) rehome() {
	node, ok := vfs.Resolve(in.backend.Root(), in.Cwd())
	if !ok || !node.IsDir() {
		in.cwd = nil
	}
}
