package shell

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/editactf/engine/internal/auth"
	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/storage"
	"github.com/editactf/engine/internal/vfs"
)

var (
	displayNamePattern = regexp.MustCompile(`^[\w .-]+$`)
	teamNamePattern    = regexp.MustCompile(`^[a-z0-9:_-]{3,32}$`)
)

func (in *Interpreter) registerCommands() {
	in.commands = make(map[string]*command)
	for _, c := range []*command{
		{"help", "help [command]", "list available commands", in.cmdHelp},
		{"clear", "clear", "clear the terminal", in.cmdClear},
		{"ls", "ls [path]", "list directory contents", in.cmdLs},
		{"cd", "cd [path]", "change directory", in.cmdCd},
		{"pwd", "pwd", "print working directory", in.cmdPwd},
		{"cat", "cat <file>", "print file contents", in.cmdCat},
		{"open", "open <file>", "open a file in a new tab", in.cmdOpen},
		{"rules", "rules", "show the competition rules", in.cmdRules},
		{"leaderboard", "leaderboard", "show the team leaderboard", in.cmdLeaderboard},
		{"teams", "teams", "list registered teams", in.cmdTeams},
		{"challenges", "challenges [filter] [--compact]", "list challenges", in.cmdChallenges},
		{"challenge", "challenge <id>", "show challenge details", in.cmdChallenge},
		{"hint", "hint <id>", "reveal a challenge hint", in.cmdHint},
		{"team", "team [create|join|leave|show]", "manage your team", in.cmdTeam},
		{"profile", "profile [name|show]", "manage your profile", in.cmdProfile},
		{"auth", "auth [register|login|logout|me]", "manage your account", in.cmdAuth},
		{"export", "export", "export your solves as JSON", in.cmdExport},
		{"date", "date", "print the server time", in.cmdDate},
		{"whoami", "whoami", "print who you are", in.cmdWhoami},
		{"reload", "reload", "reload the challenge catalog", in.cmdReload},
	} {
		in.commands[c.name] = c
		in.order = append(in.order, c.name)
	}
}

func (in *Interpreter) cmdHelp(_ context.Context, args []string) (Result, error) {
	if len(args) > 0 {
		c, ok := in.commands[args[0]]
		if !ok {
			return Result{Output: fmt.Sprintf("No detailed help available for '%s'. Try 'help' for all commands.", args[0])}, nil
		}
		return Result{Output: fmt.Sprintf("%s - %s", c.usage, c.summary)}, nil
	}

	width := 0
	for _, name := range in.order {
		if u := in.commands[name].usage; len(u) > width {
			width = len(u)
		}
	}

	lines := []string{"Available commands:", ""}
	for _, name := range in.order {
		c := in.commands[name]
		lines = append(lines, fmt.Sprintf("  %-*s  %s", width, c.usage, c.summary))
	}
	lines = append(lines, "", "Submit a flag with: <challenge-id> editaCTF{...}")
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) cmdClear(_ context.Context, _ []string) (Result, error) {
	return Result{Clear: true}, nil
}

func (in *Interpreter) cmdLs(_ context.Context, args []string) (Result, error) {
	target := in.Cwd()
	if len(args) > 0 {
		target = in.resolvePath(args[0])
	}

	node, ok := vfs.Resolve(in.backend.Root(), target)
	if !ok {
		return Result{Output: fmt.Sprintf("ls: cannot access '%s': No such file or directory", argOr(args, target))}, nil
	}
	names := vfs.List(node)
	if len(names) == 0 {
		return Result{}, nil
	}
	return Result{Output: strings.Join(names, "  ")}, nil
}

func (in *Interpreter) cmdCd(_ context.Context, args []string) (Result, error) {
	if len(args) == 0 || args[0] == "~" {
		in.cwd = nil
		return Result{}, nil
	}

	target := in.resolvePath(args[0])
	node, ok := vfs.Resolve(in.backend.Root(), target)
	if !ok {
		return Result{Output: fmt.Sprintf("cd: no such directory: %s", args[0])}, nil
	}
	if !node.IsDir() {
		return Result{Output: fmt.Sprintf("cd: not a directory: %s", args[0])}, nil
	}
	in.cwd = vfs.SplitPath(target)
	return Result{}, nil
}

func (in *Interpreter) cmdPwd(_ context.Context, _ []string) (Result, error) {
	return Result{Output: in.Cwd()}, nil
}

func (in *Interpreter) cmdCat(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "usage: cat <file>"}, nil
	}

	node, ok := vfs.Resolve(in.backend.Root(), in.resolvePath(args[0]))
	if !ok {
		return Result{Output: fmt.Sprintf("cat: %s: No such file or directory", args[0])}, nil
	}

	content, err := in.backend.ReadContent(ctx, node)
	if errors.Is(err, vfs.ErrIsDirectory) {
		return Result{Output: fmt.Sprintf("cat: %s: Is a directory", args[0])}, nil
	}
	if err != nil {
		in.logger.Error("cat failed", "path", node.Path, "error", err)
		return Result{Output: fmt.Sprintf("cat: %s: could not read file", args[0])}, nil
	}
	return Result{Output: content}, nil
}

func (in *Interpreter) cmdOpen(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "usage: open <file>"}, nil
	}

	node, ok := vfs.Resolve(in.backend.Root(), in.resolvePath(args[0]))
	if !ok {
		return Result{Output: fmt.Sprintf("open: %s: No such file or directory", args[0])}, nil
	}
	if node.IsDir() {
		return Result{Output: fmt.Sprintf("open: %s: Is a directory", args[0])}, nil
	}
	if node.SourceURL != "" {
		return Result{
			Output:  fmt.Sprintf("Opening %s ...", node.Path),
			OpenURL: node.SourceURL,
		}, nil
	}
	return in.cmdCat(ctx, args)
}

func (in *Interpreter) cmdRules(_ context.Context, _ []string) (Result, error) {
	return Result{Output: in.backend.Rules()}, nil
}

func (in *Interpreter) cmdLeaderboard(ctx context.Context, _ []string) (Result, error) {
	rows, err := in.backend.Leaderboard(ctx)
	if err != nil {
		in.logger.Error("leaderboard failed", "error", err)
		return Result{Output: "Could not load the leaderboard. Try again."}, nil
	}
	if len(rows) == 0 {
		return Result{Output: "No teams on the leaderboard yet. Be the first!"}, nil
	}

	lines := []string{fmt.Sprintf("%4s  %-24s  %6s  %6s", "RANK", "TEAM", "SCORE", "SOLVES")}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%4d  %-24s  %6d  %6d", r.Rank, r.Team, r.Score, r.Solves))
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) cmdTeams(ctx context.Context, _ []string) (Result, error) {
	rows, err := in.backend.Teams(ctx)
	if err != nil {
		in.logger.Error("teams listing failed", "error", err)
		return Result{Output: "Could not load teams. Try again."}, nil
	}
	if len(rows) == 0 {
		return Result{Output: "No teams yet. Create one with 'team create <name> <password>'."}, nil
	}

	lines := []string{fmt.Sprintf("%-24s  %7s  %6s", "TEAM", "MEMBERS", "SCORE")}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-24s  %7d  %6d", r.Name, r.Members, r.Score))
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) cmdChallenges(_ context.Context, args []string) (Result, error) {
	summaries := in.backend.Challenges()
	if len(summaries) == 0 {
		return Result{Output: "No challenges loaded."}, nil
	}

	// First non-flag token filters on category, id, or name. --all clears
	// the filter; --compact drops the grouping and legend.
	filter := ""
	compact := false
	all := false
	for _, a := range args {
		switch {
		case a == "--compact":
			compact = true
		case a == "--all":
			all = true
		case strings.HasPrefix(a, "--"):
			// Unknown flags are ignored.
		case filter == "":
			filter = strings.ToLower(a)
		}
	}
	if all {
		filter = ""
	}

	if filter != "" {
		var kept []models.ChallengeSummary
		for _, c := range summaries {
			if strings.Contains(strings.ToLower(c.Category), filter) ||
				strings.Contains(strings.ToLower(c.ID), filter) ||
				strings.Contains(strings.ToLower(c.Name), filter) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return Result{Output: fmt.Sprintf("No challenges match '%s'.", filter)}, nil
		}
		summaries = kept
	}

	solved := make(map[string]bool)
	if s := in.session.Summary(); s != nil {
		for _, id := range s.TeamSolvedIDs {
			solved[id] = true
		}
	}

	var lines []string
	if compact {
		for _, c := range summaries {
			mark := " "
			if solved[c.ID] {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %s %s %d", mark, c.ID, c.Category, c.Points))
		}
		return Result{Output: strings.Join(lines, "\n")}, nil
	}

	lastCategory := ""
	for _, c := range summaries {
		if c.Category != lastCategory {
			if lastCategory != "" {
				lines = append(lines, "")
			}
			lines = append(lines, c.Category+"/")
			lastCategory = c.Category
		}
		mark := " "
		if solved[c.ID] {
			mark = "*"
		}
		daily := ""
		if c.Daily {
			daily = "  [daily]"
		}
		lines = append(lines, fmt.Sprintf("  %s %-24s %-28s %4d pts  %s%s", mark, c.ID, c.Name, c.Points, c.Difficulty, daily))
	}
	lines = append(lines, "", "* = solved by your team. Use 'challenge <id>' for details.")
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) cmdChallenge(_ context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "usage: challenge <id>"}, nil
	}

	c, ok := in.backend.Challenge(args[0])
	if !ok {
		return Result{Output: fmt.Sprintf("Unknown challenge id: %s", args[0])}, nil
	}

	lines := []string{
		c.Name,
		strings.Repeat("=", len(c.Name)),
		"",
		"ID:         " + c.ID,
		"Category:   " + c.Category,
		fmt.Sprintf("Points:     %d", c.Points),
		"Difficulty: " + c.Difficulty,
	}
	if c.Daily {
		lines = append(lines, "Daily:      yes")
	}
	if c.Description != "" {
		lines = append(lines, "", c.Description)
	}
	if len(c.Files) > 0 {
		lines = append(lines, "", "Files:")
		for _, f := range c.Files {
			lines = append(lines, "  "+f)
		}
	}
	lines = append(lines, "", fmt.Sprintf("Submit with: %s editaCTF{...}", c.ID))
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) cmdHint(_ context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "usage: hint <id>"}, nil
	}

	hint, ok := in.backend.Hint(args[0])
	if !ok {
		return Result{Output: fmt.Sprintf("Unknown challenge id: %s", args[0])}, nil
	}
	if hint == "" {
		return Result{Output: "No hint available for this challenge."}, nil
	}
	return Result{Output: "Hint: " + hint}, nil
}

func (in *Interpreter) cmdTeam(ctx context.Context, args []string) (Result, error) {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		return in.teamShow(ctx)
	case "create", "join":
		if len(args) < 3 {
			return Result{Output: fmt.Sprintf("usage: team %s <name> <password>", sub)}, nil
		}
		return in.teamJoinOrCreate(ctx, sub, strings.ToLower(args[1]), args[2])
	case "leave":
		return in.teamLeave(ctx)
	default:
		return Result{Output: "usage: team [create <name> <password> | join <name> <password> | leave | show]"}, nil
	}
}

func (in *Interpreter) teamShow(ctx context.Context) (Result, error) {
	if err := in.session.Refresh(ctx); err != nil {
		in.logger.Warn("session refresh failed", "error", err)
	}
	team := in.session.Team()

	lines := []string{"Team: " + team.DisplayName()}
	if s := in.session.Summary(); s != nil {
		lines = append(lines,
			fmt.Sprintf("Score: %d", s.TeamScore),
			fmt.Sprintf("Solves: %d", len(s.TeamSolvedIDs)),
		)
	}
	if !team.IsReal() {
		lines = append(lines, "", "Join or create a real team to appear on the leaderboard:",
			"  team create <name> <password>",
			"  team join <name> <password>")
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (in *Interpreter) teamJoinOrCreate(ctx context.Context, verb, name, password string) (Result, error) {
	user := in.session.User()
	if user == nil {
		return Result{Output: "Please login first with 'auth login <email> <password>'."}, nil
	}
	if !teamNamePattern.MatchString(name) {
		return Result{Output: "Team names are 3-32 characters of a-z, 0-9, ':', '_' or '-'."}, nil
	}
	if verb == "create" && models.ReservedTeamName(name) {
		return Result{Output: fmt.Sprintf("'%s' is reserved. Pick another team name.", name)}, nil
	}

	var err error
	if verb == "create" {
		err = in.backend.CreateTeam(ctx, user, name, password)
	} else {
		err = in.backend.JoinTeam(ctx, user, name, password)
	}
	switch {
	case errors.Is(err, storage.ErrTeamExists):
		return Result{Output: fmt.Sprintf("Team '%s' already exists. Join it with 'team join %s <password>'.", name, name)}, nil
	case errors.Is(err, storage.ErrTeamNotFound):
		return Result{Output: fmt.Sprintf("No team named '%s'. Create it with 'team create %s <password>'.", name, name)}, nil
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Result{Output: "Wrong team password."}, nil
	case err != nil:
		in.logger.Error("team change failed", "verb", verb, "team", name, "error", err)
		return Result{Output: "Could not update your team. Try again."}, nil
	}

	if err := in.session.Refresh(ctx); err != nil {
		in.logger.Warn("session refresh failed", "error", err)
	}
	if verb == "create" {
		return Result{Output: fmt.Sprintf("Team '%s' created. You are now playing for it.", name)}, nil
	}
	return Result{Output: fmt.Sprintf("You joined team '%s'.", name)}, nil
}

func (in *Interpreter) teamLeave(ctx context.Context) (Result, error) {
	user := in.session.User()
	if user == nil {
		return Result{Output: "Please login first with 'auth login <email> <password>'."}, nil
	}

	if err := in.backend.LeaveTeam(ctx, user); err != nil {
		in.logger.Error("team leave failed", "error", err)
		return Result{Output: "Could not leave your team. Try again."}, nil
	}
	if err := in.session.Refresh(ctx); err != nil {
		in.logger.Warn("session refresh failed", "error", err)
	}
	return Result{Output: "You left your team and are playing individually again."}, nil
}

func (in *Interpreter) cmdProfile(ctx context.Context, args []string) (Result, error) {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		user := in.session.User()
		if user == nil {
			return Result{Output: "Not signed in. Use 'auth register' or 'auth login'."}, nil
		}
		if err := in.session.Refresh(ctx); err != nil {
			in.logger.Warn("session refresh failed", "error", err)
		}
		name := in.session.DisplayName()
		if name == "" {
			name = "(unset)"
		}
		var solves int
		if s := in.session.Summary(); s != nil {
			solves = len(s.UserSolvedIDs)
		}
		return Result{Output: strings.Join([]string{
			"Email:        " + user.Email,
			"Display name: " + name,
			"Team:         " + in.session.Team().DisplayName(),
			fmt.Sprintf("Your solves:  %d", solves),
		}, "\n")}, nil

	case "name":
		user := in.session.User()
		if user == nil {
			return Result{Output: "Please login first with 'auth login <email> <password>'."}, nil
		}
		name := strings.TrimSpace(strings.Join(args[1:], " "))
		if len(name) < 3 || len(name) > 32 || !displayNamePattern.MatchString(name) {
			return Result{Output: "Display names are 3-32 characters of letters, digits, spaces, '.', '_' or '-'."}, nil
		}
		if err := in.backend.SetDisplayName(ctx, user, name); err != nil {
			if errors.Is(err, storage.ErrDisplayNameTaken) {
				return Result{Output: fmt.Sprintf("Display name '%s' is already taken.", name)}, nil
			}
			in.logger.Error("display name update failed", "error", err)
			return Result{Output: "Could not update your display name. Try again."}, nil
		}
		if err := in.session.Refresh(ctx); err != nil {
			in.logger.Warn("session refresh failed", "error", err)
		}
		return Result{Output: fmt.Sprintf("Display name set to '%s'.", name)}, nil

	default:
		return Result{Output: "usage: profile [show | name <your_name>]"}, nil
	}
}

func (in *Interpreter) cmdAuth(ctx context.Context, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "usage: auth [register <email> <password> | login <email> <password> | logout | me]"}, nil
	}

	switch args[0] {
	case "register":
		if len(args) < 3 {
			return Result{Output: "usage: auth register <email> <password>"}, nil
		}
		_, err := in.backend.Register(ctx, args[1], args[2])
		switch {
		case errors.Is(err, storage.ErrEmailTaken):
			return Result{Output: "That email is already registered. Use 'auth login <email> <password>'."}, nil
		case err != nil:
			return Result{Output: "Could not register: " + err.Error()}, nil
		}
		return Result{Output: "Account created. Sign in with 'auth login <email> <password>'."}, nil

	case "login":
		if len(args) < 3 {
			return Result{Output: "usage: auth login <email> <password>"}, nil
		}
		token, user, err := in.backend.Login(ctx, args[1], args[2])
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return Result{Output: "Invalid email or password."}, nil
		case err != nil:
			in.logger.Error("login failed", "error", err)
			return Result{Output: "Could not sign you in. Try again."}, nil
		}
		in.session.SetAuth(user, token)
		if err := in.session.Refresh(ctx); err != nil {
			in.logger.Warn("session refresh failed", "error", err)
		}
		return Result{Output: fmt.Sprintf("Signed in as %s.", user.Email)}, nil

	case "logout":
		in.session.ClearAuth()
		return Result{Output: "Signed out. You are browsing as a guest."}, nil

	case "me":
		user := in.session.User()
		if user == nil {
			return Result{Output: "Not signed in."}, nil
		}
		return Result{Output: "Signed in as " + user.Email + "."}, nil

	default:
		return Result{Output: "usage: auth [register <email> <password> | login <email> <password> | logout | me]"}, nil
	}
}

func (in *Interpreter) cmdExport(ctx context.Context, _ []string) (Result, error) {
	user := in.session.User()
	if user == nil {
		return Result{Output: "Please login first with 'auth login <email> <password>'."}, nil
	}

	payload, err := in.backend.Export(ctx, user)
	if err != nil {
		in.logger.Error("export failed", "error", err)
		return Result{Output: "Could not export your data. Try again."}, nil
	}
	return Result{Output: payload}, nil
}

func (in *Interpreter) cmdDate(_ context.Context, _ []string) (Result, error) {
	return Result{Output: time.Now().UTC().Format(time.RFC1123)}, nil
}

func (in *Interpreter) cmdWhoami(_ context.Context, _ []string) (Result, error) {
	if name := in.session.DisplayName(); name != "" {
		return Result{Output: name}, nil
	}
	if user := in.session.User(); user != nil {
		return Result{Output: user.Email}, nil
	}
	return Result{Output: "guest"}, nil
}

func (in *Interpreter) cmdReload(ctx context.Context, _ []string) (Result, error) {
	if err := in.backend.Reload(ctx); err != nil {
		in.logger.Error("catalog reload failed", "error", err)
		return Result{Output: "Reload failed: " + err.Error()}, nil
	}
	in.rehome()
	return Result{Output: fmt.Sprintf("Catalog reloaded: %d challenges.", len(in.backend.Challenges()))}, nil
}

// commandNames returns the registered command names, sorted.
func (in *Interpreter) commandNames() []string {
	names := append([]string(nil), in.order...)
	sort.Strings(names)
	return names
}

func argOr(args []string, fallback string) string {
	if len(args) > 0 {
		return args[0]
	}
	return fallback
}
