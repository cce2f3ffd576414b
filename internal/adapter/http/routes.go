package http

import "github.com/labstack/echo/v4"

// Prefixes under which the funding routes are mounted. The /api form exists
// for gateways that keep their path prefix.
var FundingPrefixes = []string{"/funfund/requests", "/api/funfund/requests"}

// RegisterRoutes mounts health and the funding routes. mw applies to the
// funding groups only.
func RegisterRoutes(e *echo.Echo, health *Handler, fh *FundingHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/health", health.Health)
	for _, prefix := range FundingPrefixes {
		fh.Register(e.Group(prefix, mw...))
	}
}

func (h *FundingHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/attention", h.Attention)
	g.GET("/:id", h.Get)
	g.GET("/:id/history", h.History)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
	g.POST("/:id/close", h.Close)
	g.POST("/:id/disburse", h.Disburse)
	g.POST("/:id/repay", h.Repay)
	g.POST("/:id/schedule", h.Schedule)
}
