package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass-123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-pass-123")
	return NewAuthManager(context.Background(), testSecret, time.Hour, memory.NewSeeded())
}

func TestLoginIssuesRoleToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin-pass-123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth := newTestAuth(t)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "staff", Password: "nope"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "staff-pass-123"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	auth := newTestAuth(t)

	other := NewAuthManager(context.Background(), "another-secret-another-secret-xx", time.Hour, nil)
	foreign, err := other.sign("admin", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := auth.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	odd, err := auth.sign("admin", "cashier", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(odd); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "admin", "role": "admin", "iss": "wallquote"})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseToken(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestCreateStaffValidatesAndPersists(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "ab", Password: "long-enough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "yard crew", Password: "long-enough"}); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}
	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "yardcrew", Password: "short"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	user, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "YardCrew", Password: "long-enough"})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if user.Username != "yardcrew" || user.Role != domain.RoleStaff {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := auth.CreateStaff(ctx, domain.StaffCreateRequest{Username: "yardcrew", Password: "long-enough"}); !errors.Is(err, errUsernameTaken) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}

	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "yardcrew", Password: "long-enough"}); err != nil {
		t.Fatalf("new staff login: %v", err)
	}

	names := map[string]bool{}
	for _, u := range auth.ListStaff(ctx) {
		names[u.Username] = true
	}
	for _, want := range []string{"admin", "staff", "yardcrew"} {
		if !names[want] {
			t.Fatalf("expected %q in staff listing, got %v", want, names)
		}
	}
}

type plainUserStore struct {
	users   []domain.UserAccount
	updated map[string]string
}

func (s *plainUserStore) CreateUser(context.Context, domain.UserAccount) error { return nil }

func (s *plainUserStore) ListUsers(context.Context) ([]domain.UserAccount, error) {
	return s.users, nil
}

func (s *plainUserStore) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.updated[username] = password
	return nil
}

func TestBootstrapUpgradesPlainPasswords(t *testing.T) {
	us := &plainUserStore{
		users:   []domain.UserAccount{{Username: "legacy", Password: "plain-secret", Role: domain.RoleStaff, Active: true}},
		updated: map[string]string{},
	}
	auth := NewAuthManager(context.Background(), testSecret, time.Hour, us)

	if !isPasswordHash(us.updated["legacy"]) {
		t.Fatalf("expected stored password to be upgraded to bcrypt, got %q", us.updated["legacy"])
	}
	us.users[0].Password = us.updated["legacy"]

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("legacy login: %v", err)
	}
}
