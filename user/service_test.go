package user

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"resolveit/validation"
)

func registration(email string) validation.Raw {
	return validation.Raw{
		"name":   "Asha Rao",
		"age":    float64(34),
		"gender": "Female",
		"address": map[string]any{
			"street": "12 Lake Rd",
			"city":   "Pune",
			"zip":    "411001",
		},
		"email": email,
		"phone": "9876543210",
	}
}

func TestService_Register(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo).WithIDGenerator(func() string { return "user-1" })

	u, err := svc.Register(context.Background(), registration("asha@example.com"))
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("expected id user-1 got %q", u.ID)
	}
	if u.Gender != GenderFemale {
		t.Fatalf("expected gender %s got %s", GenderFemale, u.Gender)
	}

	got, err := svc.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Email != "asha@example.com" {
		t.Fatalf("expected stored email, got %q", got.Email)
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	if _, err := svc.Register(context.Background(), registration("asha@example.com")); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	// Case differences do not make a new identity.
	if _, err := svc.Register(context.Background(), registration("ASHA@example.com")); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if len(repo.usersByID) != 1 {
		t.Fatalf("expected exactly one stored user, got %d", len(repo.usersByID))
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	raw := registration("asha@example.com")
	raw["phone"] = "123"

	_, err := svc.Register(context.Background(), raw)
	if !validation.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.usersByID) != 0 {
		t.Fatal("rejected registration must not persist a user")
	}
}

func TestService_GetByIDNotFound(t *testing.T) {
	svc := NewService(newFakeRepository())

	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) Create(ctx context.Context, u User) (User, error) {
	if _, exists := f.usersByEmail[strings.ToLower(u.Email)]; exists {
		return User{}, ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", f.nextID)
		f.nextID++
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	f.usersByEmail[strings.ToLower(u.Email)] = u
	f.usersByID[u.ID] = u
	return u, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id string) (User, error) {
	u, ok := f.usersByID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	u, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepository) List(ctx context.Context, limit int) ([]Summary, error) {
	out := make([]Summary, 0, len(f.usersByID))
	for _, u := range f.usersByID {
		out = append(out, Summary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func TestPGRepositoryMalformedIDIsNotFound(t *testing.T) {
	_, err := NewRepository(nil).GetByID(context.Background(), "party-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
