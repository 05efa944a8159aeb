package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestService_EnsureAdminAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "admin", "s3cret-pass")
	if err != nil {
		t.Fatalf("ensure admin: unexpected error: %v", err)
	}
	if admin.PasswordHash == "s3cret-pass" {
		t.Fatal("ensure admin: password stored in clear")
	}

	resp, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Session.ID != admin.ID || resp.Session.Role != RoleAdmin {
		t.Fatalf("login: unexpected session %+v", resp.Session)
	}

	session, err := svc.RequireAdmin(resp.Token)
	if err != nil {
		t.Fatalf("require admin: %v", err)
	}
	if session.ID != admin.ID {
		t.Fatalf("require admin: expected %q got %q", admin.ID, session.ID)
	}
}

func TestService_EnsureAdminReplacesPassword(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")
	ctx := context.Background()

	if _, err := svc.EnsureAdmin(ctx, "admin", "old-password"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnsureAdmin(ctx, "admin", "new-password"); err != nil {
		t.Fatal(err)
	}
	if len(repo.admins) != 1 {
		t.Fatalf("expected a single admin, got %d", len(repo.admins))
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "old-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "new-password"}); err != nil {
		t.Fatalf("new password: %v", err)
	}

	if _, err := svc.EnsureAdmin(ctx, " ", "x"); err == nil {
		t.Fatal("expected error for blank username")
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")
	ctx := context.Background()
	if _, err := svc.EnsureAdmin(ctx, "admin", "right-password"); err != nil {
		t.Fatal(err)
	}

	for _, req := range []LoginRequest{
		{Username: "unknown", Password: "right-password"},
		{Username: "admin", Password: "wrong-password"},
	} {
		if _, err := svc.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("login(%q): expected ErrInvalidCredentials, got %v", req.Username, err)
		}
	}
}

func TestService_TokenRejections(t *testing.T) {
	repo := newFakeRepository()
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, "test-secret").WithClock(func() time.Time { return issuedAt })
	ctx := context.Background()
	if _, err := svc.EnsureAdmin(ctx, "admin", "pw-123456"); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "pw-123456"})
	if err != nil {
		t.Fatal(err)
	}

	// Still valid just before expiry.
	svc.WithClock(func() time.Time { return issuedAt.Add(TokenTTL - time.Minute) })
	if _, err := svc.RequireAdmin(resp.Token); err != nil {
		t.Fatalf("token before expiry: %v", err)
	}

	svc.WithClock(func() time.Time { return issuedAt.Add(TokenTTL + time.Minute) })
	if _, err := svc.RequireAdmin(resp.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token: expected ErrUnauthorized, got %v", err)
	}

	svc.WithClock(func() time.Time { return issuedAt })
	if _, err := svc.RequireAdmin(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing token: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.RequireAdmin("not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage token: expected ErrUnauthorized, got %v", err)
	}

	forged := signToken(t, "other-secret", jwt.MapClaims{"id": "x", "role": "admin", "exp": issuedAt.Add(time.Hour).Unix()})
	if _, err := svc.RequireAdmin(forged); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("forged token: expected ErrUnauthorized, got %v", err)
	}

	noExp := signToken(t, "test-secret", jwt.MapClaims{"id": "x", "role": "admin"})
	if _, err := svc.RequireAdmin(noExp); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token without exp: expected ErrUnauthorized, got %v", err)
	}

	viewer := signToken(t, "test-secret", jwt.MapClaims{"id": "x", "role": "viewer", "exp": issuedAt.Add(time.Hour).Unix()})
	if _, err := svc.VerifyToken(viewer); err != nil {
		t.Fatalf("viewer token should verify: %v", err)
	}
	if _, err := svc.RequireAdmin(viewer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("wrong role: expected ErrForbidden, got %v", err)
	}
}

func TestSessionContext(t *testing.T) {
	if _, ok := SessionFrom(context.Background()); ok {
		t.Fatal("expected no session on empty context")
	}
	ctx := WithSession(context.Background(), Session{ID: "a1", Role: RoleAdmin})
	session, ok := SessionFrom(ctx)
	if !ok || session.ID != "a1" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

type fakeRepository struct {
	admins map[string]Admin
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{admins: make(map[string]Admin)}
}

func (f *fakeRepository) UpsertAdmin(_ context.Context, params UpsertAdminParams) (Admin, error) {
	now := time.Now().UTC()
	admin, ok := f.admins[params.Username]
	if !ok {
		admin = Admin{ID: params.ID, Username: params.Username, CreatedAt: now}
	}
	admin.PasswordHash = params.PasswordHash
	admin.Role = params.Role
	admin.UpdatedAt = now
	f.admins[params.Username] = admin
	return admin, nil
}

func (f *fakeRepository) GetAdminByUsername(_ context.Context, username string) (Admin, error) {
	admin, ok := f.admins[username]
	if !ok {
		return Admin{}, ErrAdminNotFound
	}
	return admin, nil
}
