package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"answering-platform/internal/audit"
	"answering-platform/internal/auth"
	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/disputes"
	"answering-platform/internal/leads"
	"answering-platform/internal/rbac"
	"answering-platform/internal/reporting"
	"answering-platform/internal/tenant"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Tenants  *tenant.Repository
	Recorder *calls.Recorder
	Leads    leads.Repository
	Biller   *billing.Biller
	Disputes *disputes.Service
	Reports  *reporting.Service
	Audit    *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.OrganizationID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, organization_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.OrganizationID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}

	f := calls.ListFilter{
		CampaignID: c.Query("campaign_id"),
		Limit:      queryInt(c, "limit", 0),
	}
	if s := c.Query("status"); s != "" {
		f.Status = calls.Status(s)
	}
	var err error
	if f.From, f.To, err = queryRange(c); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.Recorder.List(c.Request.Context(), orgID, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "count": len(rows)})
}

func (h Handlers) GetCall(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	row, err := h.Recorder.Get(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// --- Leads ---

func (h Handlers) ListLeads(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	rows, err := h.Leads.ListLeads(c.Request.Context(), orgID, queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": rows, "count": len(rows)})
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

func (h Handlers) UpdateLeadStatus(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req leadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := leads.Status(req.Status)
	if !leads.ValidStatus(status) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if err := h.Leads.SetLeadStatus(c.Request.Context(), orgID, c.Param("id"), status, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

// --- Usage ---

// GetUsage returns the organization's current-month billable counter against
// its plan allowance.
func (h Handlers) GetUsage(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	org, err := h.Tenants.GetOrganization(c.Request.Context(), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}

	plan := org.Plan
	if org.AdminGrantedPlan != tenant.PlanNone {
		if org.AdminGrantExpiresAt == nil || org.AdminGrantExpiresAt.After(time.Now().UTC()) {
			plan = org.AdminGrantedPlan
		}
	}
	included := h.Biller.IncludedCalls(plan)
	overage := org.BillableCallsThisMonth - included
	if overage < 0 {
		overage = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"organization_id":           org.ID,
		"plan":                      plan,
		"billable_calls_this_month": org.BillableCallsThisMonth,
		"included_calls":            included,
		"overage_calls":             overage,
		"bypass_limits":             org.BypassLimits,
		"month":                     org.UsageMonth,
		"year":                      org.UsageYear,
	})
}

// --- Disputes ---

type openDisputeRequest struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

func (h Handlers) OpenDispute(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Disputes.Open(c.Request.Context(), orgID, req.CallID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h Handlers) ListDisputes(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	rows, err := h.Disputes.List(c.Request.Context(), orgID, queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": rows, "count": len(rows)})
}

// --- Reports ---

func (h Handlers) CallsSummaryReport(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	from, to, err := queryRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OrganizationID: orgID,
		Range:          reporting.TimeRange{From: from, To: to},
		CampaignID:     c.Query("campaign_id"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) UsageSummaryReport(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	now := time.Now().UTC()
	sum, err := h.Reports.UsageSummary(c.Request.Context(), reporting.UsageSummaryRequest{
		OrganizationID: orgID,
		Month:          queryInt(c, "month", int(now.Month())),
		Year:           queryInt(c, "year", now.Year()),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) LeadsSummaryReport(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	from, to, err := queryRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.Reports.LeadsSummary(c.Request.Context(), reporting.LeadsSummaryRequest{
		OrganizationID: orgID,
		Range:          reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Admin ---

type grantPlanRequest struct {
	Plan      string     `json:"plan"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AdminGrantPlan assigns a temporary plan to an organization.
// RBAC: owner or super_admin.
func (h Handlers) AdminGrantPlan(c *gin.Context) {
	targetOrgID := c.Param("id")
	var req grantPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	plan := tenant.Plan(req.Plan)
	switch plan {
	case tenant.PlanStarter, tenant.PlanPro, tenant.PlanScale:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "plan must be starter, pro or scale"})
		return
	}

	now := time.Now().UTC()
	if err := h.Tenants.GrantPlan(c.Request.Context(), targetOrgID, plan, req.ExpiresAt, now); err != nil {
		h.fail(c, err)
		return
	}
	h.auditAdmin(c, targetOrgID, "granted plan "+string(plan), gin.H{"plan": plan, "expires_at": req.ExpiresAt})
	c.JSON(http.StatusOK, gin.H{"success": true, "plan": plan, "expires_at": req.ExpiresAt})
}

type bypassRequest struct {
	Enabled bool `json:"enabled"`
}

// AdminSetBypass toggles the organization's usage-limit bypass.
// RBAC: owner or super_admin.
func (h Handlers) AdminSetBypass(c *gin.Context) {
	targetOrgID := c.Param("id")
	var req bypassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Tenants.SetBypassLimits(c.Request.Context(), targetOrgID, req.Enabled, time.Now().UTC()); err != nil {
		h.fail(c, err)
		return
	}
	action := "disabled limit bypass"
	if req.Enabled {
		action = "enabled limit bypass"
	}
	h.auditAdmin(c, targetOrgID, action, gin.H{"enabled": req.Enabled})
	c.JSON(http.StatusOK, gin.H{"success": true, "bypass_limits": req.Enabled})
}

type resolveDisputeRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// AdminResolveDispute settles a pending dispute; approval reverses the
// call's billable count. The dispute service writes its own audit entry.
// RBAC: owner or super_admin.
func (h Handlers) AdminResolveDispute(c *gin.Context) {
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	actorUserID, _ := auth.UserID(c.Request.Context())
	actorRole, _ := auth.Role(c.Request.Context())

	d, err := h.Disputes.Resolve(c.Request.Context(), disputes.ResolveInput{
		DisputeID:   c.Param("id"),
		Approve:     req.Approve,
		Notes:       req.Notes,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		ActorIP:     c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// --- helpers ---

func (h Handlers) orgID(c *gin.Context) (string, bool) {
	orgID, err := auth.OrganizationID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return "", false
	}
	return orgID, true
}

func (h Handlers) auditAdmin(c *gin.Context, targetOrgID, message string, meta gin.H) {
	if h.Audit == nil {
		return
	}
	actorUserID, _ := auth.UserID(c.Request.Context())
	actorRole, _ := auth.Role(c.Request.Context())
	raw, _ := json.Marshal(meta)
	// Audit is best-effort on the response path; failures are not surfaced.
	_ = h.Audit.LogAdminAction(c.Request.Context(), targetOrgID, actorUserID, actorRole, c.ClientIP(), message, string(raw))
}

// fail maps service errors onto HTTP status codes.
func (h Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, leads.ErrNotFound),
		errors.Is(err, disputes.ErrNotFound),
		errors.Is(err, tenant.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, disputes.ErrAlreadyOpen):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already has a pending dispute"})
	case errors.Is(err, disputes.ErrResolved):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "dispute already resolved"})
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, leads.ErrInvalidArgument),
		errors.Is(err, disputes.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryRange parses from/to query params (RFC3339). Absent values default
// to the trailing 30 days.
func queryRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -30), now

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	return from, to, nil
}

// Convenience middleware bundles.

func RequireOrganizationAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireOrganization(), rbac.RequireAnyRole(roles...)}
}
