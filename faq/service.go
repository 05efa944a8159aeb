package faq

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"resolveit/validation"
)

// Store abstracts repository operations for the service.
type Store interface {
	Upsert(ctx context.Context, id, key, query, answer string) (Entry, bool, error)
	GetByKey(ctx context.Context, key string) (Entry, error)
	Search(ctx context.Context, term string, limit int) ([]Entry, error)
}

// Service exposes the answer book used by the help widget.
type Service struct {
	repo        Store
	idGenerator func() string
}

// NewService builds a Service using the provided repository.
func NewService(repo Store) *Service {
	return &Service{repo: repo, idGenerator: func() string { return uuid.NewString() }}
}

// Key normalizes a query for matching: lower case, single spaces.
func Key(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Answer records an administrator's answer, replacing any earlier one for
// the same query.
func (s *Service) Answer(ctx context.Context, raw validation.Raw) (Entry, bool, error) {
	if raw == nil {
		return Entry{}, false, validation.Fail("body", "request body is required")
	}
	query, _ := raw["query"].(string)
	answer, _ := raw["answer"].(string)
	query = strings.TrimSpace(query)
	answer = strings.TrimSpace(answer)

	var problems []validation.Problem
	if query == "" {
		problems = append(problems, validation.Problem{Field: "query", Message: "query is required"})
	}
	if answer == "" {
		problems = append(problems, validation.Problem{Field: "answer", Message: "answer is required"})
	}
	if len(problems) > 0 {
		return Entry{}, false, &validation.Error{Problems: problems}
	}

	return s.repo.Upsert(ctx, s.idGenerator(), Key(query), query, answer)
}

// Lookup returns the exact answer for q when one exists, otherwise entries
// whose query contains q.
func (s *Service) Lookup(ctx context.Context, q string, limit int) ([]Entry, error) {
	key := Key(q)
	if key == "" {
		return nil, validation.Fail("q", "q is required")
	}

	e, err := s.repo.GetByKey(ctx, key)
	if err == nil {
		return []Entry{e}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.repo.Search(ctx, key, limit)
}
