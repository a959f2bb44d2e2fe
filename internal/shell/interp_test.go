package shell

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/sessionstate"
	"github.com/editactf/engine/internal/vfs"
)

// fakeBackend serves the interpreter from fixed in-memory fixtures. It also
// doubles as the facade's summary source.
type fakeBackend struct {
	root       *models.FsNode
	challenges []models.Challenge
	rules      string

	submitResult *models.SubmissionResult
	submitCalls  int
	lastSubmitID string
	lastFlag     string

	summary *models.Summary
	reloads int

	rulesPanics bool
}

func newFakeBackend() *fakeBackend {
	challenges := []models.Challenge{
		{ID: "warmup-echo", Name: "Echo Chamber", Category: "intro", Points: 100, Difficulty: "easy", Description: "Say hello."},
		{ID: "web-xss", Name: "Sticky Script", Category: "web", Points: 150, Difficulty: "easy"},
		{ID: "web-sqli", Name: "Leaky Login", Category: "web", Points: 250, Difficulty: "medium", Files: []string{"app.py"}},
	}
	rules := "Play fair. Do not attack the platform."
	return &fakeBackend{
		root:       vfs.Build(challenges, rules),
		challenges: challenges,
		rules:      rules,
	}
}

func (b *fakeBackend) Root() *models.FsNode { return b.root }

func (b *fakeBackend) ReadContent(ctx context.Context, node *models.FsNode) (string, error) {
	return vfs.ReadContent(ctx, nil, node)
}

func (b *fakeBackend) Rules() string {
	if b.rulesPanics {
		panic("rules store unavailable")
	}
	return b.rules
}

func (b *fakeBackend) Challenges() []models.ChallengeSummary {
	out := make([]models.ChallengeSummary, 0, len(b.challenges))
	for i := range b.challenges {
		out = append(out, b.challenges[i].Summarize())
	}
	return out
}

func (b *fakeBackend) Challenge(id string) (*models.Challenge, bool) {
	for i := range b.challenges {
		if b.challenges[i].ID == id {
			return &b.challenges[i], true
		}
	}
	return nil, false
}

func (b *fakeBackend) Hint(id string) (string, bool) {
	if _, ok := b.Challenge(id); !ok {
		return "", false
	}
	if id == "warmup-echo" {
		return "Try echoing back.", true
	}
	return "", true
}

func (b *fakeBackend) FlagCandidates(limit int) []string {
	var ids []string
	for _, c := range b.challenges {
		if len(ids) == limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids
}

func (b *fakeBackend) Leaderboard(context.Context) ([]models.LeaderboardRow, error) {
	return []models.LeaderboardRow{{Rank: 1, Team: "red-team", Score: 350, Solves: 2}}, nil
}

func (b *fakeBackend) Teams(context.Context) ([]models.TeamsRow, error) {
	return []models.TeamsRow{{Name: "red-team", Members: 3, Score: 350}}, nil
}

func (b *fakeBackend) Submit(_ context.Context, _ *models.User, challengeID, flag string) (*models.SubmissionResult, error) {
	b.submitCalls++
	b.lastSubmitID = challengeID
	b.lastFlag = flag
	if b.submitResult != nil {
		return b.submitResult, nil
	}
	return &models.SubmissionResult{State: models.SubmissionIncorrect, Message: "Incorrect flag. Keep trying!"}, nil
}

func (b *fakeBackend) Register(_ context.Context, email, _ string) (*models.User, error) {
	return &models.User{ID: "u-new", Email: email}, nil
}

func (b *fakeBackend) Login(_ context.Context, email, _ string) (string, *models.User, error) {
	return "tok", &models.User{ID: "u-1", Email: email}, nil
}

func (b *fakeBackend) SetDisplayName(context.Context, *models.User, string) error { return nil }
func (b *fakeBackend) CreateTeam(context.Context, *models.User, string, string) error {
	return nil
}
func (b *fakeBackend) JoinTeam(context.Context, *models.User, string, string) error { return nil }
func (b *fakeBackend) LeaveTeam(context.Context, *models.User) error                { return nil }

func (b *fakeBackend) Export(context.Context, *models.User) (string, error) {
	return `{"solves":[]}`, nil
}

func (b *fakeBackend) Reload(context.Context) error {
	b.reloads++
	b.root = vfs.Build(b.challenges, b.rules)
	return nil
}

func (b *fakeBackend) Summary(_ context.Context, user *models.User) (*models.Summary, error) {
	if b.summary != nil {
		return b.summary, nil
	}
	team := models.DefaultTeam()
	if user != nil {
		team = models.IndividualTeam(user.ID)
	}
	return &models.Summary{Team: team.StorageName()}, nil
}

func newTestInterpreter(t *testing.T) (*Interpreter, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	session := sessionstate.NewFacade(backend)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInterpreter(backend, session, logger), backend
}

func run(t *testing.T, in *Interpreter, line string) Result {
	t.Helper()
	res, err := in.Execute(context.Background(), line)
	if err != nil {
		t.Fatalf("Execute(%q) failed: %v", line, err)
	}
	return res
}

func TestExecuteUnknownCommand(t *testing.T) {
	in, _ := newTestInterpreter(t)
	res := run(t, in, "frobnicate")
	if !strings.Contains(res.Output, "command not found: frobnicate") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestHelp(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res := run(t, in, "help")
	for _, want := range []string{"Available commands:", "cd [path]", "editaCTF{...}"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("help output missing %q", want)
		}
	}

	if res := run(t, in, "help team"); !strings.Contains(res.Output, "team [create|join|leave|show]") {
		t.Errorf("help team = %q", res.Output)
	}
	if res := run(t, in, "help frobnicate"); !strings.Contains(res.Output, "No detailed help available for 'frobnicate'") {
		t.Errorf("help unknown = %q", res.Output)
	}
}

func TestExecuteContainsHandlerPanic(t *testing.T) {
	in, backend := newTestInterpreter(t)
	backend.rulesPanics = true

	res := run(t, in, "rules")
	if !strings.Contains(res.Output, "Something went wrong") {
		t.Errorf("output = %q", res.Output)
	}

	// The session must stay usable after a contained panic.
	backend.rulesPanics = false
	if res := run(t, in, "pwd"); res.Output != "/" {
		t.Errorf("pwd after panic = %q", res.Output)
	}
}

func TestExecuteEmptyLine(t *testing.T) {
	in, _ := newTestInterpreter(t)
	res := run(t, in, "   ")
	if res.Output != "" || res.Clear {
		t.Errorf("empty line result = %+v", res)
	}
	if in.History().Len() != 0 {
		t.Error("empty line should not enter history")
	}
}

func TestNavigation(t *testing.T) {
	in, _ := newTestInterpreter(t)

	if res := run(t, in, "pwd"); res.Output != "/" {
		t.Errorf("pwd = %q, want /", res.Output)
	}

	res := run(t, in, "ls")
	for _, want := range []string{"rules.txt", "leaderboard.json", "teams.json", "challenges/"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("ls output missing %q: %q", want, res.Output)
		}
	}

	run(t, in, "cd challenges/web")
	if res := run(t, in, "pwd"); res.Output != "/challenges/web" {
		t.Errorf("pwd = %q, want /challenges/web", res.Output)
	}

	if res := run(t, in, "ls .."); !strings.Contains(res.Output, "intro/") {
		t.Errorf("ls .. output = %q", res.Output)
	}

	run(t, in, "cd ../../..")
	if res := run(t, in, "pwd"); res.Output != "/" {
		t.Errorf("pwd after cd above root = %q, want /", res.Output)
	}

	run(t, in, "cd challenges/web")
	run(t, in, "cd ~")
	if res := run(t, in, "pwd"); res.Output != "/" {
		t.Errorf("pwd after cd ~ = %q, want /", res.Output)
	}

	if res := run(t, in, "cd nope"); !strings.Contains(res.Output, "no such directory") {
		t.Errorf("cd nope = %q", res.Output)
	}
	if res := run(t, in, "cd rules.txt"); !strings.Contains(res.Output, "not a directory") {
		t.Errorf("cd file = %q", res.Output)
	}
}

func TestCatAndOpen(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res := run(t, in, "cat /challenges/intro/warmup-echo/README.md")
	if !strings.Contains(res.Output, "# Echo Chamber") {
		t.Errorf("cat README = %q", res.Output)
	}

	if res := run(t, in, "cat /challenges"); !strings.Contains(res.Output, "Is a directory") {
		t.Errorf("cat dir = %q", res.Output)
	}
	if res := run(t, in, "cat /missing"); !strings.Contains(res.Output, "No such file") {
		t.Errorf("cat missing = %q", res.Output)
	}

	res = run(t, in, "open /leaderboard.json")
	if res.OpenURL != "/api/v1/leaderboard" {
		t.Errorf("open url = %q, want /api/v1/leaderboard", res.OpenURL)
	}
}

func TestChallengeCommands(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res := run(t, in, "challenges")
	for _, want := range []string{"intro/", "web/", "warmup-echo", "web-sqli", "250 pts"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("challenges output missing %q", want)
		}
	}

	res = run(t, in, "challenges web")
	if strings.Contains(res.Output, "warmup-echo") {
		t.Errorf("filtered listing should drop warmup-echo: %q", res.Output)
	}
	for _, want := range []string{"web-sqli", "web-xss"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("filtered listing missing %q: %q", want, res.Output)
		}
	}
	if res := run(t, in, "challenges WEB"); !strings.Contains(res.Output, "web-sqli") {
		t.Errorf("filter should be case-insensitive: %q", res.Output)
	}
	if res := run(t, in, "challenges web --all"); !strings.Contains(res.Output, "warmup-echo") {
		t.Errorf("--all should override the filter: %q", res.Output)
	}
	if res := run(t, in, "challenges nomatch"); !strings.Contains(res.Output, "No challenges match 'nomatch'") {
		t.Errorf("empty filter result = %q", res.Output)
	}

	res = run(t, in, "challenges --compact")
	if strings.Contains(res.Output, "intro/") || strings.Contains(res.Output, "* = solved") {
		t.Errorf("compact listing should drop grouping and legend: %q", res.Output)
	}
	if !strings.Contains(res.Output, "web-sqli web 250") {
		t.Errorf("compact listing = %q", res.Output)
	}

	res = run(t, in, "challenge web-sqli")
	for _, want := range []string{"Leaky Login", "Points:     250", "app.py", "web-sqli editaCTF{...}"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("challenge output missing %q: %q", want, res.Output)
		}
	}

	if res := run(t, in, "challenge nope"); !strings.Contains(res.Output, "Unknown challenge id") {
		t.Errorf("unknown challenge = %q", res.Output)
	}

	if res := run(t, in, "hint warmup-echo"); !strings.Contains(res.Output, "Try echoing back.") {
		t.Errorf("hint = %q", res.Output)
	}
	if res := run(t, in, "hint web-xss"); !strings.Contains(res.Output, "No hint available") {
		t.Errorf("empty hint = %q", res.Output)
	}
}

func TestAmbientSubmission(t *testing.T) {
	in, backend := newTestInterpreter(t)
	backend.submitResult = &models.SubmissionResult{
		State:   models.SubmissionAwarded,
		Correct: true,
		Awarded: 100,
		Points:  100,
		Message: "Correct! Points awarded to your team.",
	}

	res := run(t, in, "warmup-echo editaCTF{hello_world}")
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
	if backend.lastSubmitID != "warmup-echo" || backend.lastFlag != "editaCTF{hello_world}" {
		t.Errorf("submitted (%q, %q)", backend.lastSubmitID, backend.lastFlag)
	}
	if !strings.Contains(res.Output, "+100 points") {
		t.Errorf("award output = %q", res.Output)
	}
}

func TestBareFlagListsCandidates(t *testing.T) {
	in, backend := newTestInterpreter(t)

	res := run(t, in, "editaCTF{hello_world}")
	if backend.submitCalls != 0 {
		t.Error("bare flag must not be scored")
	}
	for _, want := range []string{"warmup-echo editaCTF{...}", "web-sqli editaCTF{...}"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("bare flag output missing %q: %q", want, res.Output)
		}
	}
}

func TestMalformedFlagFallsThroughToDispatch(t *testing.T) {
	in, backend := newTestInterpreter(t)

	res := run(t, in, "editaCTF{unclosed")
	if backend.submitCalls != 0 {
		t.Error("malformed flag must not be scored")
	}
	if !strings.Contains(res.Output, "command not found") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestAuthFlow(t *testing.T) {
	in, _ := newTestInterpreter(t)

	if res := run(t, in, "whoami"); res.Output != "guest" {
		t.Errorf("whoami = %q, want guest", res.Output)
	}

	res := run(t, in, "auth login player@example.com secret99")
	if !strings.Contains(res.Output, "Signed in as player@example.com") {
		t.Errorf("login = %q", res.Output)
	}
	if res := run(t, in, "auth me"); !strings.Contains(res.Output, "player@example.com") {
		t.Errorf("auth me = %q", res.Output)
	}
	if res := run(t, in, "whoami"); res.Output != "player@example.com" {
		t.Errorf("whoami = %q", res.Output)
	}

	run(t, in, "auth logout")
	if res := run(t, in, "auth me"); res.Output != "Not signed in." {
		t.Errorf("auth me after logout = %q", res.Output)
	}
}

func TestTeamValidation(t *testing.T) {
	in, _ := newTestInterpreter(t)
	run(t, in, "auth login player@example.com secret99")

	if res := run(t, in, "team create AB pw"); !strings.Contains(res.Output, "3-32 characters") {
		t.Errorf("short team name = %q", res.Output)
	}
	if res := run(t, in, "team create guest pw"); !strings.Contains(res.Output, "reserved") {
		t.Errorf("guest team name = %q", res.Output)
	}
	if res := run(t, in, "team create guest_evil pw"); !strings.Contains(res.Output, "reserved") {
		t.Errorf("guest-prefixed team name = %q", res.Output)
	}
	if res := run(t, in, "team create red-team pw"); !strings.Contains(res.Output, "created") {
		t.Errorf("team create = %q", res.Output)
	}
}

func TestProfileNameValidation(t *testing.T) {
	in, _ := newTestInterpreter(t)
	run(t, in, "auth login player@example.com secret99")

	if res := run(t, in, "profile name ab"); !strings.Contains(res.Output, "3-32 characters") {
		t.Errorf("short name = %q", res.Output)
	}
	if res := run(t, in, "profile name bad//name"); !strings.Contains(res.Output, "3-32 characters") {
		t.Errorf("bad chars = %q", res.Output)
	}
	if res := run(t, in, "profile name Agent Smith"); !strings.Contains(res.Output, "Display name set to 'Agent Smith'") {
		t.Errorf("set name = %q", res.Output)
	}
}

func TestClearAndReload(t *testing.T) {
	in, backend := newTestInterpreter(t)

	if res := run(t, in, "clear"); !res.Clear {
		t.Error("clear should set the Clear bit")
	}

	run(t, in, "cd challenges/intro")
	if res := run(t, in, "reload"); !strings.Contains(res.Output, "3 challenges") {
		t.Errorf("reload = %q", res.Output)
	}
	if backend.reloads != 1 {
		t.Errorf("reloads = %d, want 1", backend.reloads)
	}
	if res := run(t, in, "pwd"); res.Output != "/challenges/intro" {
		t.Errorf("cwd after reload = %q, want /challenges/intro", res.Output)
	}
}
