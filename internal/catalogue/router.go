package catalogue

import (
	"github.com/labstack/echo/v4"
)

// Register mounts the catalogue routes under /items, rate-limited the same
// way the teacher rate-limits its public browse endpoints: this surface is
// outside bid traffic's own per-bidder gate and needs its own defense
// against scraping/abuse. cache, if non-nil, wraps only the read endpoints —
// caching a stale POST /items response would be a correctness bug, not an
// optimization.
func Register(e *echo.Echo, h *Handler, limiter, cache echo.MiddlewareFunc) {
	g := e.Group("/items")
	if limiter != nil {
		g.Use(limiter)
	}
	readMW := []echo.MiddlewareFunc{}
	if cache != nil {
		readMW = append(readMW, cache)
	}
	g.GET("", h.ListItems, readMW...)
	g.GET("/:id", h.GetItem, readMW...)
	g.POST("", h.CreateItem)
}
