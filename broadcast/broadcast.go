// Package broadcast delivers case status-change events to interested
// observers. Delivery is fire-and-forget and at-most-once: a slow or absent
// subscriber loses events rather than blocking the publisher.
package broadcast

import (
	"context"
	"errors"
	"time"
)

// TopicDashboard receives every status-change event.
const TopicDashboard = "dashboard"

// Event is the payload published on a status change.
type Event struct {
	CaseID   string         `json:"caseId"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Publisher publishes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, Event) error { return nil }
