package faq

import "time"

// Entry is a question answered by an administrator.
type Entry struct {
	ID        string
	Query     string
	Answer    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
