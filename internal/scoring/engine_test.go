package scoring

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/ratelimit"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	upserts  int
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, profile *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	cp := *profile
	f.profiles[profile.UserID] = &cp
	return nil
}

type fakeSolves struct {
	mu      sync.Mutex
	rows    map[string]*models.Solve
	inserts int
}

func (f *fakeSolves) InsertSolveIfAbsent(_ context.Context, solve *models.Solve) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	key := solve.TeamName + "/" + solve.ChallengeID
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = solve
	return true, nil
}

type fakeSecrets map[string]struct {
	flag   string
	points int
}

func (f fakeSecrets) SecretFlag(id string) (string, bool) {
	e, ok := f[id]
	return e.flag, ok
}

func (f fakeSecrets) Points(id string) (int, bool) {
	e, ok := f[id]
	return e.points, ok
}

func newTestEngine(profiles *fakeProfiles, solves *fakeSolves) (*Engine, *ratelimit.Memory) {
	limiter := ratelimit.NewMemory(5, time.Minute)
	secrets := fakeSecrets{
		"warmup-echo": {flag: "editaCTF{hello_world}", points: 100},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(profiles, solves, secrets, limiter, logger), limiter
}

func namedProfile(userID, team, name string) *fakeProfiles {
	return &fakeProfiles{profiles: map[string]*models.Profile{
		userID: {UserID: userID, TeamName: team, DisplayName: name},
	}}
}

func TestSubmitInvalidFormat(t *testing.T) {
	profiles := namedProfile("u-1", "red-team", "alice")
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, _ := newTestEngine(profiles, solves)

	for _, raw := range []string{"", "hello_world", "editaCTF{unclosed", "CTF{hello}", "editaCTF{a}trailing"} {
		res, err := engine.Submit(context.Background(), &models.User{ID: "u-1"}, "warmup-echo", raw)
		if err != nil {
			t.Fatalf("Submit(%q) failed: %v", raw, err)
		}
		if res.State != models.SubmissionFormatInvalid {
			t.Errorf("Submit(%q) state = %v, want format invalid", raw, res.State)
		}
	}

	// Malformed submissions must not touch storage or the limiter.
	if solves.inserts != 0 {
		t.Errorf("expected no solve inserts, got %d", solves.inserts)
	}
	res, err := engine.Submit(context.Background(), &models.User{ID: "u-1"}, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionAwarded {
		t.Errorf("quota should be intact after malformed attempts, state = %v", res.State)
	}
}

func TestSubmitRequiresAuthAndProfile(t *testing.T) {
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{
		"u-noname": {UserID: "u-noname", TeamName: "guest_u-noname"},
	}}
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, _ := newTestEngine(profiles, solves)
	ctx := context.Background()

	res, err := engine.Submit(ctx, nil, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionUnauthorized {
		t.Errorf("anonymous state = %v, want unauthorized", res.State)
	}

	res, err = engine.Submit(ctx, &models.User{ID: "u-noname"}, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionProfileIncomplete {
		t.Errorf("no-display-name state = %v, want profile incomplete", res.State)
	}

	res, err = engine.Submit(ctx, &models.User{ID: "u-missing"}, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionProfileIncomplete {
		t.Errorf("missing-profile state = %v, want profile incomplete", res.State)
	}
	if solves.inserts != 0 {
		t.Errorf("expected no solve inserts, got %d", solves.inserts)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	profiles := namedProfile("u-1", "red-team", "alice")
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, limiter := newTestEngine(profiles, solves)
	ctx := context.Background()
	user := &models.User{ID: "u-1"}

	base := time.Now()
	limiter.SetClock(func() time.Time { return base })

	for i := 0; i < 5; i++ {
		res, err := engine.Submit(ctx, user, "warmup-echo", "editaCTF{wrong_answer}")
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		if res.State != models.SubmissionIncorrect {
			t.Fatalf("Submit %d state = %v, want incorrect", i, res.State)
		}
	}

	res, err := engine.Submit(ctx, user, "warmup-echo", "editaCTF{wrong_answer}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionRateLimited {
		t.Errorf("sixth submission state = %v, want rate limited", res.State)
	}

	// Another user has an independent window.
	profiles.profiles["u-2"] = &models.Profile{UserID: "u-2", TeamName: "blue-team", DisplayName: "bob"}
	res, err = engine.Submit(ctx, &models.User{ID: "u-2"}, "warmup-echo", "editaCTF{wrong_answer}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionIncorrect {
		t.Errorf("other user state = %v, want incorrect", res.State)
	}

	// Window expiry restores quota.
	limiter.SetClock(func() time.Time { return base.Add(61 * time.Second) })
	res, err = engine.Submit(ctx, user, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionAwarded {
		t.Errorf("post-window state = %v, want awarded", res.State)
	}
}

func TestSubmitAwardAndRepeat(t *testing.T) {
	profiles := namedProfile("u-1", "red-team", "alice")
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, _ := newTestEngine(profiles, solves)
	ctx := context.Background()
	user := &models.User{ID: "u-1"}

	res, err := engine.Submit(ctx, user, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionAwarded || !res.Correct {
		t.Fatalf("first solve = %+v, want awarded", res)
	}
	if res.Points != 100 || res.Awarded != 100 {
		t.Errorf("points = %d awarded = %d, want 100 and 100", res.Points, res.Awarded)
	}

	res, err = engine.Submit(ctx, user, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionAlreadySolved || res.Awarded != 0 || !res.Correct {
		t.Fatalf("repeat solve = %+v, want already solved with nothing awarded", res)
	}

	solve := solves.rows["red-team/warmup-echo"]
	if solve == nil {
		t.Fatal("solve not recorded under the team")
	}
	if solve.Points != 100 || solve.UserID != "u-1" {
		t.Errorf("recorded solve = %+v", solve)
	}
}

func TestSubmitUnknownChallenge(t *testing.T) {
	profiles := namedProfile("u-1", "red-team", "alice")
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, _ := newTestEngine(profiles, solves)

	res, err := engine.Submit(context.Background(), &models.User{ID: "u-1"}, "no-such", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionUnknownChallenge {
		t.Errorf("state = %v, want unknown challenge", res.State)
	}
}

func TestSubmitUpgradesSharedGuestBucket(t *testing.T) {
	profiles := namedProfile("u-1", "guest", "alice")
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	engine, _ := newTestEngine(profiles, solves)

	res, err := engine.Submit(context.Background(), &models.User{ID: "u-1"}, "warmup-echo", "editaCTF{hello_world}")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != models.SubmissionAwarded {
		t.Fatalf("state = %v, want awarded", res.State)
	}

	if got := profiles.profiles["u-1"].TeamName; got != "guest_u-1" {
		t.Errorf("profile team = %q, want guest_u-1", got)
	}
	if _, ok := solves.rows["guest_u-1/warmup-echo"]; !ok {
		t.Error("solve should be credited to the individual guest team, not the shared bucket")
	}
	if _, ok := solves.rows["guest/warmup-echo"]; ok {
		t.Error("shared guest bucket must never receive solves")
	}
}

func TestSubmitConcurrentAwardExactlyOnce(t *testing.T) {
	solves := &fakeSolves{rows: map[string]*models.Solve{}}
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{}}
	for _, id := range []string{"u-1", "u-2", "u-3", "u-4"} {
		profiles.profiles[id] = &models.Profile{UserID: id, TeamName: "red-team", DisplayName: "m-" + id}
	}
	engine, _ := newTestEngine(profiles, solves)

	var wg sync.WaitGroup
	awarded := make(chan bool, 4)
	for _, id := range []string{"u-1", "u-2", "u-3", "u-4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := engine.Submit(context.Background(), &models.User{ID: id}, "warmup-echo", "editaCTF{hello_world}")
			if err != nil {
				t.Errorf("Submit(%s) failed: %v", id, err)
				return
			}
			awarded <- res.State == models.SubmissionAwarded
		}(id)
	}
	wg.Wait()
	close(awarded)

	wins := 0
	for a := range awarded {
		if a {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("awarded %d times for one team and challenge, want exactly 1", wins)
	}
}

func TestValidFormat(t *testing.T) {
	valid := []string{"editaCTF{}", "editaCTF{hello_world}", "editaCTF{sp aces ok}"}
	for _, s := range valid {
		if !ValidFormat(s) {
			t.Errorf("ValidFormat(%q) = false, want true", s)
		}
	}
	invalid := []string{"editaCTF{a}b", "editactf{a}", "editaCTF{a{b}}", " editaCTF{a}"}
	for _, s := range invalid {
		if ValidFormat(s) {
			t.Errorf("ValidFormat(%q) = true, want false", s)
		}
	}
}
