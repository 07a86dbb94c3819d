package server

import (
	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Case routes
	apiRoutes.POST("/cases", routes.CreateCaseHandler, middleware.RequirePermission("case.create"))

	// Billing routes
	apiRoutes.GET("/cases/:number/billable-events", routes.GetBillableEventsHandler, middleware.RequirePermission("billing.view"))
	apiRoutes.POST("/billable-events/:id/approve", routes.ApproveEventHandler, middleware.RequirePermission("billing.decide"))
	apiRoutes.POST("/billable-events/:id/reject", routes.RejectEventHandler, middleware.RequirePermission("billing.decide"))

	// Ingestion routes
	apiRoutes.POST("/ingest", routes.IngestHandler, middleware.RequirePermission("ingest.submit"))
	apiRoutes.GET("/records/:key/source", routes.GetRecordSourceHandler, middleware.RequirePermission("billing.view"))

	// Pipeline routes
	apiRoutes.GET("/parked-units", routes.GetParkedUnitsHandler, middleware.RequirePermission("pipeline.operate"))
}
