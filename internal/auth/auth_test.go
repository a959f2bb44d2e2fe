package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/storage"
)

type fakeRepo struct {
	storage.Repository

	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	profiles     map[string]*models.Profile
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
		profiles:     make(map[string]*models.Profile),
	}
}

func (r *fakeRepo) CreateUser(_ context.Context, user *models.User) error {
	if _, ok := r.usersByEmail[user.Email]; ok {
		return storage.ErrEmailTaken
	}
	r.usersByEmail[user.Email] = user
	r.usersByID[user.ID] = user
	return nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return r.usersByEmail[email], nil
}

func (r *fakeRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return r.usersByID[id], nil
}

func (r *fakeRepo) UpsertProfile(_ context.Context, profile *models.Profile) error {
	r.profiles[profile.UserID] = profile
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Player@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "player@example.com" {
		t.Errorf("expected lowercased email, got %q", user.Email)
	}
	if user.PasswordHash == "hunter2hunter2" {
		t.Error("password stored in the clear")
	}

	profile := repo.profiles[user.ID]
	if profile == nil {
		t.Fatal("Register did not create a profile")
	}
	want := "guest_" + user.ID
	if profile.TeamName != want {
		t.Errorf("profile team = %q, want %q", profile.TeamName, want)
	}

	token, got, err := svc.Login(ctx, "player@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Login returned user %q, want %q", got.ID, user.ID)
	}
	if token == "" {
		t.Fatal("Login returned empty token")
	}

	resolved, err := svc.UserForToken(ctx, token)
	if err != nil {
		t.Fatalf("UserForToken failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("token resolved to user %q, want %q", resolved.ID, user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "player@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, _, err := svc.Login(ctx, "player@example.com", "wrong-password"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter2hunter2"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "test-secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "hunter2hunter2"); err == nil {
		t.Error("expected error for invalid email")
	}
	if _, err := svc.Register(ctx, "player@example.com", "short"); err == nil {
		t.Error("expected error for short password")
	}
}

func TestUserForTokenRejectsTampering(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "test-secret", time.Hour)
	other := NewService(repo, "other-secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "player@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token, _, err := svc.Login(ctx, "player@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := other.UserForToken(ctx, token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for wrong signing key, got %v", err)
	}

	mangled := token[:strings.LastIndex(token, ".")] + ".AAAA"
	if _, err := svc.UserForToken(ctx, mangled); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for mangled token, got %v", err)
	}
	if _, err := svc.UserForToken(ctx, ""); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
