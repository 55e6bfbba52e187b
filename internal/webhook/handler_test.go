package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"answering-platform/internal/access"
	"answering-platform/internal/audit"
	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/config"
	"answering-platform/internal/leads"
	"answering-platform/internal/notify"
	"answering-platform/internal/provider"
	"answering-platform/internal/tenant"
	"answering-platform/pkg/metrics"
	"answering-platform/pkg/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// memStore is an in-memory tenant.Store for handler tests.
type memStore struct {
	orgs       map[string]tenant.Organization
	assistants map[string]string
	numbers    []tenant.PhoneNumber
}

func (m *memStore) GetOrganization(_ context.Context, id string) (tenant.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		return o, nil
	}
	return tenant.Organization{}, tenant.ErrNotFound
}

func (m *memStore) FindOrgByAssistantID(_ context.Context, id string) (string, bool, error) {
	org, ok := m.assistants[id]
	return org, ok, nil
}

func (m *memStore) FindOrgByProviderNumberID(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (m *memStore) FindOrgByNumber(_ context.Context, e164 string) (string, bool, error) {
	for _, n := range m.numbers {
		if n.Number == e164 {
			return n.OrganizationID, true, nil
		}
	}
	return "", false, nil
}

func (m *memStore) ListNumbers(_ context.Context) ([]tenant.PhoneNumber, error) {
	return m.numbers, nil
}

// memLeadRepo satisfies leads.Repository.
type memLeadRepo struct {
	leads map[string]leads.Lead
}

func newMemLeadRepo() *memLeadRepo { return &memLeadRepo{leads: map[string]leads.Lead{}} }

func (m *memLeadRepo) UpsertLead(_ context.Context, l leads.Lead) (leads.Lead, error) {
	m.leads[l.OrganizationID+"|"+l.Phone] = l
	return l, nil
}

func (m *memLeadRepo) UpdateCampaignContactOutcome(context.Context, string, string, string, string, time.Time) error {
	return nil
}

func (m *memLeadRepo) GetLead(context.Context, string, string) (leads.Lead, error) {
	return leads.Lead{}, leads.ErrNotFound
}

func (m *memLeadRepo) ListLeads(context.Context, string, int) ([]leads.Lead, error) {
	return nil, nil
}

func (m *memLeadRepo) SetLeadStatus(context.Context, string, string, leads.Status, time.Time) error {
	return nil
}

func callRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "provider_call_id", "direction", "from_number", "to_number",
		"status", "outcome", "duration_seconds", "recording_url", "transcript", "summary",
		"campaign_id", "contact_id", "started_at", "ended_at", "billable", "created_at", "updated_at",
	})
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/webhook", h.Live)
	r.POST("/api/webhook", h.Receive)
	return r
}

func post(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not json: %v (%s)", err, w.Body.String())
	}
	return out
}

func TestLive(t *testing.T) {
	h := &Handler{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/webhook", nil)
	newRouter(h).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "ok" || body["service"] != "call-webhook" {
		t.Fatalf("body = %v", body)
	}
}

func TestReceive_FailOpenWhenUnresolved(t *testing.T) {
	store := &memStore{orgs: map[string]tenant.Organization{}}
	auditRepo := audit.NewMemoryRepo()

	h := &Handler{
		Resolver: tenant.NewResolver(store, nil),
		Tenants:  store,
		Checker:  access.NewChecker(store),
		Audit:    audit.NewService(auditRepo),
		Metrics:  metrics.New(),
	}

	payload := `{"message":{"type":"status-update","status":"ringing","call":{"id":"prov-1","customer":{"number":"+15550001111"},"phoneNumber":{"number":"+15559999999"}}}}`
	w := post(newRouter(h), payload, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("fail-open must answer 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["reason"] != ReasonFailOpen {
		t.Fatalf("reason = %v, want %q", body["reason"], ReasonFailOpen)
	}

	events := auditRepo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeFailOpen {
		t.Fatalf("audit events = %+v", events)
	}
	if events[0].ProviderCallID != "prov-1" {
		t.Fatalf("audit provider call id = %q", events[0].ProviderCallID)
	}
}

func TestReceive_TrialExpiredDenied(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", TrialEndsAt: &past},
	}}

	h := &Handler{
		Resolver: tenant.NewResolver(store, nil),
		Tenants:  store,
		Checker:  access.NewChecker(store),
		Metrics:  metrics.New(),
	}

	payload := `{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","call":{"id":"prov-2","metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["error"] != access.ReasonTrialExpired {
		t.Fatalf("error = %v, want %q", body["error"], access.ReasonTrialExpired)
	}
	if body["action"] != "call_blocked" {
		t.Fatalf("action = %v", body["action"])
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Fatal("message missing")
	}
}

func TestReceive_IntermediateStatusSkipsAccessCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// Expired trial, but a ringing event flows through: the access decision
	// for this call already happened at its start.
	past := time.Now().Add(-48 * time.Hour)
	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", TrialEndsAt: &past},
	}}
	leadRepo := newMemLeadRepo()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO calls").
		WillReturnRows(callRows().AddRow(
			"call-1", "org-1", "prov-3", "inbound", "+15550001111", "+15559999999",
			"ringing", nil, 0, nil, nil, nil, nil, nil, nil, nil, false, now, now,
		))

	h := &Handler{
		Resolver:  tenant.NewResolver(store, nil),
		Tenants:   store,
		Checker:   access.NewChecker(store),
		Recorder:  calls.NewRecorder(db),
		Extractor: leads.NewExtractor(leadRepo),
		Metrics:   metrics.New(),
	}

	payload := `{"message":{"type":"status-update","status":"ringing","call":{"id":"prov-3","customer":{"number":"+15550001111"},"phoneNumber":{"number":"+15559999999"},"metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["callId"] != "call-1" {
		t.Fatalf("body = %v", body)
	}
	// First inbound event creates the lead even without structured data.
	if len(leadRepo.leads) != 1 {
		t.Fatalf("leads = %v", leadRepo.leads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReceive_TerminalBillableCallIncrementsCounter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", Plan: tenant.PlanStarter},
	}}
	leadRepo := newMemLeadRepo()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-3 * time.Minute)

	// Call upsert: the terminal report lands on an existing row.
	mock.ExpectQuery("INSERT INTO calls").
		WillReturnRows(callRows().AddRow(
			"call-1", "org-1", "prov-4", "inbound", "+15550001111", "+15559999999",
			"completed", "interested", 184, "https://r/1", "transcript", "summary",
			nil, nil, nil, now, false, earlier, now,
		))

	// Billing transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, plan,").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "plan", "admin_granted_plan", "admin_grant_expires_at", "bypass_limits",
			"billable_calls_this_month", "usage_month", "usage_year", "stripe_customer_id",
		}).AddRow("org-1", "starter", nil, nil, false, 7, 6, 2025, nil))
	mock.ExpectQuery("FROM usage_ledger").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "call_id", "kind", "delta", "month", "year", "metadata", "created_at",
		}))
	mock.ExpectExec("INSERT INTO usage_ledger").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE calls").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	biller := billing.NewBiller(db, config.BillingConfig{}, nil)

	h := &Handler{
		Resolver:  tenant.NewResolver(store, nil),
		Tenants:   store,
		Checker:   access.NewChecker(store),
		Recorder:  calls.NewRecorder(db),
		Extractor: leads.NewExtractor(leadRepo),
		Biller:    biller,
		Metrics:   metrics.New(),
	}

	payload := `{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","durationSeconds":184,"transcript":"transcript","analysis":{"structuredData":{"name":"Dana Fox","outcome":"interested"}},"call":{"id":"prov-4","customer":{"number":"+15550001111"},"phoneNumber":{"number":"+15559999999"},"metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["callId"] != "call-1" {
		t.Fatalf("body = %v", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReceive_DuplicateDeliveryShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", Plan: tenant.PlanStarter},
	}}

	// First delivery already claimed the marker.
	if _, err := utils.MarkOnce(context.Background(), rdb, "webhook:seen:prov-5:status-update:ringing", time.Minute); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT").
		WillReturnRows(callRows().AddRow(
			"call-9", "org-1", "prov-5", "inbound", "+15550001111", "+15559999999",
			"ringing", nil, 0, nil, nil, nil, nil, nil, nil, nil, false, now, now,
		))

	h := &Handler{
		Resolver: tenant.NewResolver(store, nil),
		Tenants:  store,
		Checker:  access.NewChecker(store),
		Recorder: calls.NewRecorder(db),
		Redis:    rdb,
		Metrics:  metrics.New(),
	}

	payload := `{"message":{"type":"status-update","status":"ringing","call":{"id":"prov-5","metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["callId"] != "call-9" {
		t.Fatalf("body = %v, want prior row id", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func workflowServer(t *testing.T) (*httptest.Server, chan map[string]any) {
	t.Helper()
	received := make(chan map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("workflow payload not json: %v", err)
		}
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func waitEvent(t *testing.T, received chan map[string]any) map[string]any {
	t.Helper()
	select {
	case body := <-received:
		return body
	case <-time.After(3 * time.Second):
		t.Fatal("workflow trigger never fired")
		return nil
	}
}

func TestReceive_TriggersWorkflowOnNewLead(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	srv, received := workflowServer(t)
	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", Plan: tenant.PlanStarter, WorkflowURL: srv.URL},
	}}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO calls").
		WillReturnRows(callRows().AddRow(
			"call-1", "org-1", "prov-20", "inbound", "+15550001111", "+15559999999",
			"ringing", nil, 0, nil, nil, nil, nil, nil, nil, nil, false, now, now,
		))

	h := &Handler{
		Resolver:  tenant.NewResolver(store, nil),
		Tenants:   store,
		Checker:   access.NewChecker(store),
		Recorder:  calls.NewRecorder(db),
		Extractor: leads.NewExtractor(newMemLeadRepo()),
		Notifier:  notify.NewDispatcher(nil, notify.NewWorkflowTrigger(), slog.Default(), metrics.New()),
		Metrics:   metrics.New(),
	}

	payload := `{"message":{"type":"status-update","status":"ringing","call":{"id":"prov-20","customer":{"number":"+15550001111"},"phoneNumber":{"number":"+15559999999"},"metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := waitEvent(t, received)
	if body["event"] != "lead.upserted" {
		t.Fatalf("workflow event = %v, want lead.upserted", body["event"])
	}
}

func TestReceive_TriggersWorkflowOnCallEnded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	srv, received := workflowServer(t)
	store := &memStore{orgs: map[string]tenant.Organization{
		"org-1": {ID: "org-1", Plan: tenant.PlanStarter, WorkflowURL: srv.URL},
	}}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-2 * time.Minute)
	// Unanswered terminal call: not billable, not a lead, workflow only.
	mock.ExpectQuery("INSERT INTO calls").
		WillReturnRows(callRows().AddRow(
			"call-2", "org-1", "prov-21", "inbound", "+15550001111", "+15559999999",
			"failed", nil, 0, nil, nil, nil, nil, nil, nil, now, false, earlier, now,
		))

	h := &Handler{
		Resolver:  tenant.NewResolver(store, nil),
		Tenants:   store,
		Checker:   access.NewChecker(store),
		Recorder:  calls.NewRecorder(db),
		Extractor: leads.NewExtractor(newMemLeadRepo()),
		Notifier:  notify.NewDispatcher(nil, notify.NewWorkflowTrigger(), slog.Default(), metrics.New()),
		Metrics:   metrics.New(),
	}

	payload := `{"message":{"type":"end-of-call-report","endedReason":"customer-did-not-answer","call":{"id":"prov-21","customer":{"number":"+15550001111"},"phoneNumber":{"number":"+15559999999"},"metadata":{"organizationId":"org-1"}}}}`
	w := post(newRouter(h), payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	body := waitEvent(t, received)
	if body["event"] != "call.ended" {
		t.Fatalf("workflow event = %v, want call.ended", body["event"])
	}
	if body["call_id"] != "call-2" || body["status"] != "failed" {
		t.Fatalf("workflow payload = %v", body)
	}
}

func TestApplyConcurrencyCap_OneSlotPerCall(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := &Handler{Redis: rdb}
	org := tenant.Organization{ID: "org-1", MaxConcurrentCalls: 5}
	ctx := context.Background()
	log := slog.Default()

	counter := func() int {
		n, err := rdb.Get(ctx, "calls:live:org-1").Int()
		if err == redis.Nil {
			return 0
		}
		if err != nil {
			t.Fatalf("counter read: %v", err)
		}
		return n
	}

	first := provider.Event{CallID: "prov-7"}
	second := provider.Event{CallID: "prov-8"}

	// ringing then answered for the same call holds exactly one slot.
	h.applyConcurrencyCap(ctx, first, calls.StatusRinging, org, log)
	h.applyConcurrencyCap(ctx, first, calls.StatusAnswered, org, log)
	if got := counter(); got != 1 {
		t.Fatalf("after two intermediate events counter = %d, want 1", got)
	}

	h.applyConcurrencyCap(ctx, second, calls.StatusRinging, org, log)
	if got := counter(); got != 2 {
		t.Fatalf("two live calls counter = %d, want 2", got)
	}

	h.applyConcurrencyCap(ctx, first, calls.StatusCompleted, org, log)
	if got := counter(); got != 1 {
		t.Fatalf("after first call ended counter = %d, want 1", got)
	}

	// a redelivered terminal event must not release a second slot
	h.applyConcurrencyCap(ctx, first, calls.StatusCompleted, org, log)
	if got := counter(); got != 1 {
		t.Fatalf("duplicate terminal delivery moved counter to %d, want 1", got)
	}

	h.applyConcurrencyCap(ctx, second, calls.StatusCompleted, org, log)
	if got := counter(); got != 0 {
		t.Fatalf("live-call counter after all calls ended = %d, want 0", got)
	}
}

func TestApplyConcurrencyCap_RejectedCallHoldsNoSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := &Handler{Redis: rdb}
	org := tenant.Organization{ID: "org-1", MaxConcurrentCalls: 1}
	ctx := context.Background()
	log := slog.Default()

	inCap := provider.Event{CallID: "prov-10"}
	overCap := provider.Event{CallID: "prov-11"}

	h.applyConcurrencyCap(ctx, inCap, calls.StatusRinging, org, log)
	h.applyConcurrencyCap(ctx, overCap, calls.StatusRinging, org, log)

	// the over-cap call ends first; the held slot must survive it
	h.applyConcurrencyCap(ctx, overCap, calls.StatusCompleted, org, log)
	if n, err := rdb.Get(ctx, "calls:live:org-1").Int(); err != nil || n != 1 {
		t.Fatalf("counter = %d (%v), want 1", n, err)
	}

	h.applyConcurrencyCap(ctx, inCap, calls.StatusCompleted, org, log)
	if err := rdb.Get(ctx, "calls:live:org-1").Err(); err != redis.Nil {
		t.Fatalf("counter should be cleared, got %v", err)
	}
}

func TestReceive_RejectsBadSecret(t *testing.T) {
	h := &Handler{WebhookSecret: "s3cret"}
	w := post(newRouter(h), `{}`, map[string]string{"X-Webhook-Secret": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestReceive_RejectsUnparseablePayload(t *testing.T) {
	store := &memStore{orgs: map[string]tenant.Organization{}}
	h := &Handler{
		Resolver: tenant.NewResolver(store, nil),
		Tenants:  store,
		Checker:  access.NewChecker(store),
	}
	w := post(newRouter(h), `{"message":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}
