package faq

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"resolveit/validation"
)

type fakeStore struct {
	byKey map[string]Entry
}

func (f *fakeStore) Upsert(_ context.Context, id, key, query, answer string) (Entry, bool, error) {
	if f.byKey == nil {
		f.byKey = map[string]Entry{}
	}
	e, ok := f.byKey[key]
	if !ok {
		e = Entry{ID: id, Query: query, CreatedAt: time.Now()}
	}
	e.Answer = answer
	e.UpdatedAt = time.Now()
	f.byKey[key] = e
	return e, !ok, nil
}

func (f *fakeStore) GetByKey(_ context.Context, key string) (Entry, error) {
	e, ok := f.byKey[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) Search(_ context.Context, term string, _ int) ([]Entry, error) {
	var out []Entry
	for key, e := range f.byKey {
		if strings.Contains(key, term) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAnswerUpsertsByNormalizedQuery(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	ctx := context.Background()

	first, created, err := svc.Answer(ctx, validation.Raw{"query": "How long does mediation take?", "answer": "Usually two weeks."})
	if err != nil || !created {
		t.Fatalf("first answer: created=%v err=%v", created, err)
	}
	second, created, err := svc.Answer(ctx, validation.Raw{"query": "  how LONG does   mediation take? ", "answer": "About ten days."})
	if err != nil || created {
		t.Fatalf("second answer: created=%v err=%v", created, err)
	}
	if second.ID != first.ID || second.Answer != "About ten days." {
		t.Fatalf("expected update of %s, got %+v", first.ID, second)
	}
	if len(store.byKey) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.byKey))
	}
}

func TestAnswerValidation(t *testing.T) {
	svc := NewService(&fakeStore{})
	_, _, err := svc.Answer(context.Background(), validation.Raw{"query": " "})
	var verr *validation.Error
	if !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Fatalf("expected two validation problems, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	svc := NewService(&fakeStore{})
	ctx := context.Background()
	for _, qa := range [][2]string{
		{"What is a panel?", "Three mediators."},
		{"Who sits on the panel?", "A lawyer, a scholar and a community member."},
	} {
		if _, _, err := svc.Answer(ctx, validation.Raw{"query": qa[0], "answer": qa[1]}); err != nil {
			t.Fatal(err)
		}
	}

	exact, err := svc.Lookup(ctx, "what is a PANEL?", 10)
	if err != nil || len(exact) != 1 || exact[0].Answer != "Three mediators." {
		t.Fatalf("exact lookup: %+v err=%v", exact, err)
	}

	partial, err := svc.Lookup(ctx, "panel", 10)
	if err != nil || len(partial) != 2 {
		t.Fatalf("partial lookup: %+v err=%v", partial, err)
	}

	if _, err := svc.Lookup(ctx, "   ", 10); !validation.IsValidationError(err) {
		t.Fatalf("expected validation error for blank query, got %v", err)
	}
}
