package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"answering-platform/internal/access"
	"answering-platform/internal/audit"
	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/leads"
	"answering-platform/internal/notify"
	"answering-platform/internal/provider"
	"answering-platform/internal/tenant"
	"answering-platform/pkg/logger"
	"answering-platform/pkg/metrics"
	"answering-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ReasonFailOpen is the response reason for deliveries processed without an
// identified organization. Part of the response contract; keep stable.
const ReasonFailOpen = "unidentified_org_fail_open"

// Handler is the provider webhook receiver. It orchestrates the full
// pipeline: parse, resolve tenant, check access, record the call, extract
// leads, bill terminal calls, and fire notifications.
//
// Posture: this endpoint is the provider's only way to tell us about a
// call, so it fails open. An unattributed delivery gets a 200 and a
// review-queue audit entry; a DB hiccup in a lookup degrades rather than
// 500s. Only call-record failures surface as errors.
type Handler struct {
	Resolver  *tenant.Resolver
	Tenants   tenant.Store
	Checker   *access.Checker
	Recorder  *calls.Recorder
	Extractor *leads.Extractor
	Biller    *billing.Biller
	Control   *provider.CallControl
	Notifier  *notify.Dispatcher
	Audit     *audit.Service
	Redis     *redis.Client
	Metrics   *metrics.Registry

	// WebhookSecret optionally authenticates deliveries; empty disables.
	WebhookSecret string

	clock func() time.Time
}

// Live answers provider liveness probes.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "call-webhook"})
}

// Receive processes one webhook delivery.
func (h *Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if h.WebhookSecret != "" {
		got := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ev, err := provider.ParseEvent(body)
	if err != nil {
		log.Warn("webhook: unparseable payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	status := calls.NormalizeStatus(ev.EffectiveStatus())
	now := h.now()

	// Fast path: the exact same delivery (call + type + status) seen within
	// the marker TTL short-circuits before any DB work. Redis being down
	// just means the slower idempotent path below does the work.
	if h.Redis != nil && ev.CallID != "" {
		key := fmt.Sprintf("webhook:seen:%s:%s:%s", ev.CallID, ev.Type, status)
		if won, err := utils.MarkOnce(ctx, h.Redis, key, 5*time.Minute); err == nil && !won {
			if existing, ok, err := h.Recorder.GetByProviderCallID(ctx, ev.CallID); err == nil && ok {
				h.count(string(status), "duplicate")
				c.JSON(http.StatusOK, gin.H{"success": true, "callId": existing.ID})
				return
			}
		}
	}

	res := h.Resolver.Resolve(ctx, tenant.ResolveInput{
		MetadataOrgID:    ev.OrganizationID,
		AssistantID:      ev.AssistantID,
		ProviderNumberID: ev.PhoneNumberID,
		FromNumber:       ev.FromNumber,
		ToNumber:         ev.ToNumber,
		Inbound:          ev.Direction == "inbound",
	})
	if res.Method == tenant.MethodNone {
		h.failOpen(c, ev, log)
		return
	}
	log.Info("webhook: organization resolved",
		"organization_id", res.OrganizationID,
		"method", string(res.Method),
		"provider_call_id", ev.CallID,
		"status", string(status),
	)

	// Intermediate statuses skip the access check: one call produces a
	// stream of events and the decision was already made at its start.
	if !status.Intermediate() {
		decision := h.Checker.Check(ctx, res.OrganizationID)
		if !decision.HasAccess {
			h.deny(c, ev, res.OrganizationID, decision, log)
			return
		}
	}

	org, err := h.Tenants.GetOrganization(ctx, res.OrganizationID)
	if err != nil {
		// Resolution already pinned the org; treat a late lookup failure
		// as a degraded read, not a blocked call.
		log.Warn("webhook: org fetch failed", "organization_id", res.OrganizationID, "error", err)
	}

	h.applyConcurrencyCap(ctx, ev, status, org, log)

	row, err := h.record(ctx, ev, res.OrganizationID, status, now)
	if err != nil {
		log.Error("webhook: call record failed", "provider_call_id", ev.CallID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	firstEvent := row.CreatedAt.Equal(row.UpdatedAt)

	leadRes := h.extractLeads(ctx, ev, row, firstEvent, log)

	if status.Terminal() {
		h.billTerminal(ctx, ev, row, status, log)
	}

	h.notifyAsync(ev, status, org, row, leadRes)

	h.count(string(status), "processed")
	c.JSON(http.StatusOK, gin.H{"success": true, "callId": row.ID})
}

func (h *Handler) failOpen(c *gin.Context, ev provider.Event, log *slog.Logger) {
	log.Warn("webhook: organization unresolved, failing open",
		"provider_call_id", ev.CallID,
		"from", ev.FromNumber,
		"to", ev.ToNumber,
	)
	if h.Metrics != nil {
		h.Metrics.FailOpenEvents.Inc()
	}
	h.count("unresolved", "fail_open")

	if h.Audit != nil {
		meta, _ := json.Marshal(gin.H{"from": ev.FromNumber, "to": ev.ToNumber, "type": ev.Type})
		if err := h.Audit.LogFailOpen(c.Request.Context(), ev.CallID, string(meta)); err != nil {
			log.Warn("webhook: fail-open audit failed", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reason": ReasonFailOpen})
}

func (h *Handler) deny(c *gin.Context, ev provider.Event, orgID string, decision access.Decision, log *slog.Logger) {
	log.Info("webhook: access denied",
		"organization_id", orgID,
		"reason", decision.Reason,
		"provider_call_id", ev.CallID,
	)
	h.count("denied", "blocked")

	// Best-effort termination off the request path. Webhooks fire after the
	// call has connected, so this races the caller and often loses.
	if h.Control != nil && ev.CallID != "" {
		callID := ev.CallID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.Control.Terminate(ctx, callID); err != nil {
				log.Warn("webhook: call termination failed", "provider_call_id", callID, "error", err)
			}
		}()
	}

	if decision.Reason == access.ReasonOrgNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   decision.Reason,
			"action":  "call_blocked",
			"message": "Organization could not be verified for this call.",
		})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{
		"error":   decision.Reason,
		"action":  "call_blocked",
		"message": "This organization does not currently have call access.",
	})
}

// applyConcurrencyCap tracks live calls per org in redis. Soft cap:
// hitting the limit (or redis being down) logs and proceeds; blocking a
// connected caller over a counter would be worse than overshooting it.
func (h *Handler) applyConcurrencyCap(ctx context.Context, ev provider.Event, status calls.Status, org tenant.Organization, log *slog.Logger) {
	if h.Redis == nil || org.ID == "" || org.MaxConcurrentCalls <= 0 || ev.CallID == "" {
		return
	}
	key := "calls:live:" + org.ID
	mark := "calls:live:mark:" + org.ID + ":" + ev.CallID

	switch {
	case status.Intermediate():
		// One slot per call, not per delivery: the first intermediate event
		// claims the marker; a later "answered" after "ringing" is a no-op.
		won, err := utils.MarkOnce(ctx, h.Redis, mark, time.Hour)
		if err != nil {
			log.Warn("webhook: concurrency mark failed", "organization_id", org.ID, "error", err)
			return
		}
		if !won {
			return
		}
		ok, err := utils.AcquireConcurrencyCap(ctx, h.Redis, key, org.MaxConcurrentCalls, time.Hour)
		if err != nil {
			log.Warn("webhook: concurrency acquire failed", "organization_id", org.ID, "error", err)
		} else if !ok {
			// No slot held; drop the marker so the terminal event does not
			// release a slot belonging to another call.
			_, _ = utils.ClearMark(ctx, h.Redis, mark)
			log.Warn("webhook: concurrent call cap exceeded",
				"organization_id", org.ID, "limit", org.MaxConcurrentCalls)
		}
	case status.Terminal():
		// Release only when this call holds a slot, so duplicate terminal
		// deliveries cannot decrement twice.
		held, err := utils.ClearMark(ctx, h.Redis, mark)
		if err != nil {
			log.Warn("webhook: concurrency mark clear failed", "organization_id", org.ID, "error", err)
			return
		}
		if !held {
			return
		}
		if err := utils.ReleaseConcurrencyCap(ctx, h.Redis, key); err != nil {
			log.Warn("webhook: concurrency release failed", "organization_id", org.ID, "error", err)
		}
	}
}

func (h *Handler) record(ctx context.Context, ev provider.Event, orgID string, status calls.Status, now time.Time) (calls.Call, error) {
	providerCallID := ev.CallID
	direction := calls.Direction(ev.Direction)
	if providerCallID == "" {
		at := ev.Timestamp
		if at.IsZero() {
			at = now
		}
		providerCallID = calls.SyntheticCallID(ev.FromNumber, ev.ToNumber, direction, at)
	}

	row := calls.Call{
		OrganizationID:  orgID,
		ProviderCallID:  providerCallID,
		Direction:       direction,
		FromNumber:      ev.FromNumber,
		ToNumber:        ev.ToNumber,
		Status:          status,
		Outcome:         ev.Structured.Outcome,
		DurationSeconds: ev.DurationSeconds,
		RecordingURL:    ev.RecordingURL,
		Transcript:      ev.Transcript,
		Summary:         ev.Summary,
		CampaignID:      ev.CampaignID,
		ContactID:       ev.ContactID,
	}
	if !ev.Timestamp.IsZero() {
		ts := ev.Timestamp
		if status.Terminal() {
			row.EndedAt = &ts
		} else {
			row.StartedAt = &ts
		}
	}
	return h.Recorder.Upsert(ctx, row)
}

func (h *Handler) extractLeads(ctx context.Context, ev provider.Event, row calls.Call, firstEvent bool, log *slog.Logger) leads.Result {
	customer := ev.FromNumber
	if ev.Direction == "outbound" {
		customer = ev.ToNumber
	}
	if ev.Structured.Phone != "" {
		customer = ev.Structured.Phone
	}

	res, err := h.Extractor.ExtractFromCall(ctx, leads.CallFacts{
		OrganizationID:   row.OrganizationID,
		CallID:           row.ID,
		Inbound:          row.Direction == calls.DirectionInbound,
		CustomerNumber:   tenant.NormalizeE164(customer),
		FirstEvent:       firstEvent,
		Name:             ev.Structured.Name,
		Email:            ev.Structured.Email,
		ServiceRequested: ev.Structured.ServiceRequested,
		Urgency:          ev.Structured.Urgency,
		Address:          ev.Structured.Address,
		Outcome:          ev.Structured.Outcome,
		Transcript:       ev.Transcript,
		CampaignID:       ev.CampaignID,
		ContactID:        ev.ContactID,
	})
	if err != nil {
		// Lead extraction never fails the webhook.
		log.Warn("webhook: lead extraction failed", "call_id", row.ID, "error", err)
		return leads.Result{}
	}
	return res
}

func (h *Handler) billTerminal(ctx context.Context, ev provider.Event, row calls.Call, status calls.Status, log *slog.Logger) {
	if !billing.Billable(string(status), ev.Structured.Outcome) {
		return
	}

	res, err := h.Biller.RecordBillableCall(ctx, row.OrganizationID, row.ID)
	if err != nil {
		// Billing errors are logged, never returned to the provider.
		log.Warn("webhook: billing failed", "call_id", row.ID, "error", err)
		return
	}
	if res.Counted && h.Metrics != nil {
		h.Metrics.BillableCalls.Inc()
		if res.Overage {
			h.Metrics.OverageCharges.Inc()
		}
	}
	if res.Overage {
		log.Info("webhook: overage call recorded",
			"organization_id", row.OrganizationID,
			"total", res.Total,
			"included", res.IncludedCalls,
		)
	}
}

func (h *Handler) notifyAsync(ev provider.Event, status calls.Status, org tenant.Organization, row calls.Call, leadRes leads.Result) {
	if h.Notifier == nil {
		return
	}

	if org.NotificationPhone != "" {
		if leadRes.LeadUpserted && leadRes.Lead.ID != "" && ev.Direction == "inbound" {
			h.Notifier.NewLead(org.NotificationPhone, leadRes.Lead)
		}
		if status == calls.StatusVoicemail && ev.Direction == "inbound" {
			h.Notifier.MissedCall(org.NotificationPhone, ev.FromNumber)
		}
	}

	// Org-configured automation hook: lead and end-of-call events.
	if org.WorkflowURL != "" {
		if leadRes.LeadUpserted && leadRes.Lead.ID != "" {
			h.Notifier.Workflow(org.WorkflowURL, gin.H{
				"event": "lead.upserted",
				"lead":  leadRes.Lead,
			})
		}
		if status.Terminal() {
			h.Notifier.Workflow(org.WorkflowURL, gin.H{
				"event":   "call.ended",
				"call_id": row.ID,
				"status":  status,
				"outcome": row.Outcome,
			})
		}
	}
}

func (h *Handler) count(status, result string) {
	if h.Metrics != nil {
		h.Metrics.WebhookEvents.WithLabelValues(status, result).Inc()
	}
}

func (h *Handler) now() time.Time {
	if h.clock != nil {
		return h.clock().UTC()
	}
	return time.Now().UTC()
}
