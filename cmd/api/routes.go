package main

import (
	"answering-platform/internal/httpapi"
	"answering-platform/internal/rbac"
	"answering-platform/internal/webhook"
	"answering-platform/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, hooks *webhook.Handler, api httpapi.Handlers, reg *metrics.Registry, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", reg.Handler())

	// Provider webhooks (public; the receiver authenticates deliveries via
	// the shared secret when one is configured).
	r.GET("/api/webhook", hooks.Live)
	r.POST("/api/webhook", hooks.Receive)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// AUTH routes (token issuance).
		// NOTE: placeholder login route; real credential validation is not implemented.
		v1.POST("/auth/login", api.Login)

		// CALLS routes
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireOrganizationAndAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleAnalyst, rbac.RoleSuperAdmin)...)
		{
			calls.GET("", api.ListCalls)
			calls.GET("/:id", api.GetCall)
		}

		// LEADS routes
		leads := v1.Group("/leads")
		leads.Use(httpapi.RequireOrganizationAndAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleSuperAdmin)...)
		{
			leads.GET("", api.ListLeads)
			leads.PATCH("/:id", api.UpdateLeadStatus)
		}

		// USAGE + DISPUTES routes
		usage := v1.Group("")
		usage.Use(httpapi.RequireOrganizationAndAnyRole(rbac.RoleOwner, rbac.RoleAnalyst, rbac.RoleSuperAdmin)...)
		{
			usage.GET("/usage", api.GetUsage)
			usage.GET("/disputes", api.ListDisputes)
			usage.POST("/disputes", api.OpenDispute)
		}

		// REPORTS routes
		reports := v1.Group("/reports")
		reports.Use(httpapi.RequireOrganizationAndAnyRole(rbac.RoleOwner, rbac.RoleAnalyst, rbac.RoleSuperAdmin)...)
		{
			reports.GET("/calls-summary", api.CallsSummaryReport)
			reports.GET("/usage-summary", api.UsageSummaryReport)
			reports.GET("/leads-summary", api.LeadsSummaryReport)
		}

		// ADMIN routes
		// Only owner/super_admin can access admin endpoints by default.
		// Hidden support_operator is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})

			admin.POST("/orgs/:id/grant-plan", api.AdminGrantPlan)
			admin.POST("/orgs/:id/bypass", api.AdminSetBypass)
			admin.POST("/disputes/:id/resolve", api.AdminResolveDispute)
		}
	}
}
