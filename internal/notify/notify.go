// Package notify tells the notification system that the recurring engine
// created work. Events are queued with the execution and delivered by the
// cron scheduler, which retries failures.
package notify

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"bizdesk/internal/pkg/httpclient"
)

const EventJobCreated = "job.created"

// JobCreatedEvent describes one committed occurrence.
type JobCreatedEvent struct {
	Event        string    `json:"event"`
	BusinessID   string    `json:"business_id"`
	CustomerID   string    `json:"customer_id"`
	ScheduleID   string    `json:"schedule_id"`
	JobID        string    `json:"job_id"`
	InvoiceID    *string   `json:"invoice_id,omitempty"`
	ScheduledFor string    `json:"scheduled_for"`
	CreatedAt    time.Time `json:"created_at"`
}

// Hook receives job-created events.
type Hook interface {
	JobCreated(ctx context.Context, ev JobCreatedEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) JobCreated(context.Context, JobCreatedEvent) error { return nil }

// Webhook posts events as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *httpclient.Client
}

func NewWebhook(url, token string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// the outbox owns long-range retries
	client := httpclient.New().
		WithTimeout(timeout).
		WithRetries(1).
		WithHeader("User-Agent", "bizdesk-recurring")
	if token != "" {
		client = client.WithBearerToken(token)
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) JobCreated(ctx context.Context, ev JobCreatedEvent) error {
	if ev.Event == "" {
		ev.Event = EventJobCreated
	}
	if _, err := w.client.PostJSON(ctx, w.url, ev); err != nil {
		return errors.Wrapf(err, "notify job %s", ev.JobID)
	}
	return nil
}

// New returns a Webhook for url, or Nop when url is empty.
func New(url, token string, timeout time.Duration) Hook {
	if url == "" {
		return Nop{}
	}
	return NewWebhook(url, token, timeout)
}
