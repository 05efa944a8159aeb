package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resolveit/validation"
)

// Service handles disputant registration.
type Service struct {
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

// NewService creates a new user service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register validates a raw registration payload and stores the user. Each
// email can be registered once; later attempts return ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, raw validation.Raw) (User, error) {
	in, err := validation.ValidateUser(raw)
	if err != nil {
		return User{}, err
	}

	// The unique index is authoritative; this check only gives a clean error
	// without burning an insert.
	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("user: check email: %w", err)
	}

	u, err := s.repo.Create(ctx, User{
		ID:     s.idGenerator(),
		Name:   in.Name,
		Age:    in.Age,
		Gender: Gender(in.Gender),
		Address: Address{
			Street: in.Address.Street,
			City:   in.Address.City,
			Zip:    in.Address.Zip,
		},
		Email:     in.Email,
		Phone:     in.Phone,
		Photo:     in.Photo,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetByID retrieves a registered user.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns users for selection lists.
func (s *Service) List(ctx context.Context, limit int) ([]Summary, error) {
	return s.repo.List(ctx, limit)
}
