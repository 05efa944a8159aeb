package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUnauthorized signals a missing, malformed or expired token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden signals a valid token without the required role.
	ErrForbidden = errors.New("auth: admin role required")
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

// Service issues and verifies administrator tokens.
type Service struct {
	repo      Repository
	jwtSecret []byte
	now       func() time.Time
}

// LoginResult bundles the token and the session it encodes.
type LoginResult struct {
	Token   string
	Session Session
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EnsureAdmin stores the configured administrator, hashing the password.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Admin{}, fmt.Errorf("auth: admin username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Admin{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.repo.UpsertAdmin(ctx, UpsertAdminParams{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
	})
}

// Login checks administrator credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	admin, err := s.repo.GetAdminByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	session := Session{ID: admin.ID, Role: admin.Role, ExpiresAt: s.now().Add(TokenTTL)}
	token, err := s.generateToken(session)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{Token: token, Session: session}, nil
}

// VerifyToken validates a token and returns the session it carries. Every
// failure wraps ErrUnauthorized.
func (s *Service) VerifyToken(tokenString string) (Session, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Session{}, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Session{}, ErrUnauthorized
	}
	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return Session{}, fmt.Errorf("%w: invalid id in token", ErrUnauthorized)
	}
	role, ok := claims["role"].(string)
	if !ok {
		return Session{}, fmt.Errorf("%w: invalid role in token", ErrUnauthorized)
	}

	session := Session{ID: id, Role: Role(role)}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	return session, nil
}

// RequireAdmin verifies the token and checks the admin role.
func (s *Service) RequireAdmin(tokenString string) (Session, error) {
	session, err := s.VerifyToken(tokenString)
	if err != nil {
		return Session{}, err
	}
	if session.Role != RoleAdmin {
		return Session{}, ErrForbidden
	}
	return session, nil
}

func (s *Service) generateToken(session Session) (string, error) {
	claims := jwt.MapClaims{
		"id":   session.ID,
		"role": string(session.Role),
		"exp":  session.ExpiresAt.Unix(),
		"iat":  s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, session)
}

// SessionFrom returns the session stored by WithSession.
func SessionFrom(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(ctxKey{}).(Session)
	return session, ok
}
