package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"answering-platform/internal/leads"
	"answering-platform/pkg/metrics"
)

// Dispatcher runs notifications off the request path. Every side effect
// gets its own timeout context so a slow gateway can never hold a webhook
// response, and failures are logged and counted, never retried.
type Dispatcher struct {
	sms      *SMSSender
	workflow *WorkflowTrigger
	log      *slog.Logger
	metrics  *metrics.Registry

	timeout time.Duration

	// run is swappable in tests to make Async synchronous.
	run func(fn func())
}

func NewDispatcher(sms *SMSSender, workflow *WorkflowTrigger, log *slog.Logger, m *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		sms:      sms,
		workflow: workflow,
		log:      log,
		metrics:  m,
		timeout:  15 * time.Second,
		run:      func(fn func()) { go fn() },
	}
}

// Async executes fn detached from the caller. kind labels the failure
// counter and log line.
func (d *Dispatcher) Async(kind string, fn func(ctx context.Context) error) {
	d.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.fail(kind, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := fn(ctx); err != nil {
			d.fail(kind, err)
		}
	})
}

// NewLead texts the org's notification phone about a fresh lead.
func (d *Dispatcher) NewLead(notificationPhone string, lead leads.Lead) {
	if notificationPhone == "" || d.sms == nil || !d.sms.Configured() {
		return
	}
	d.Async("new_lead_sms", func(ctx context.Context) error {
		body := fmt.Sprintf("New lead: %s (%s)", orUnknown(lead.Name), lead.Phone)
		if lead.ServiceRequested != "" {
			body += " - " + lead.ServiceRequested
		}
		return d.sms.Send(ctx, notificationPhone, body)
	})
}

// MissedCall texts the org about a call that ended without an answer.
func (d *Dispatcher) MissedCall(notificationPhone, fromNumber string) {
	if notificationPhone == "" || d.sms == nil || !d.sms.Configured() {
		return
	}
	d.Async("missed_call_sms", func(ctx context.Context) error {
		return d.sms.Send(ctx, notificationPhone,
			fmt.Sprintf("Missed call from %s", orUnknown(fromNumber)))
	})
}

// Workflow posts an event payload to an automation webhook.
func (d *Dispatcher) Workflow(url string, payload any) {
	if url == "" || d.workflow == nil {
		return
	}
	d.Async("workflow", func(ctx context.Context) error {
		return d.workflow.Trigger(ctx, url, payload)
	})
}

func (d *Dispatcher) fail(kind string, err error) {
	if d.metrics != nil {
		d.metrics.NotifyFailures.WithLabelValues(kind).Inc()
	}
	if d.log != nil {
		d.log.Warn("notification failed", "kind", kind, "error", err)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
