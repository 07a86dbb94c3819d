package routes

import (
	"net/http"

	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetParkedUnitsHandler lists parked ingestion units for operators,
// optionally filtered by case number.
func GetParkedUnitsHandler(c echo.Context) error {
	type parkedResponse struct {
		Units []store.ParkedUnit `json:"units"`
	}

	app := c.(*middleware.AppContext).App
	caseNumber := billing.NormalizeCaseNumber(c.QueryParam("case"))

	units, err := app.Billing.ListParkedUnits(c.Request().Context(), caseNumber)
	if err != nil {
		logger.Error("Failed to list parked units", "case", caseNumber, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if units == nil {
		units = []store.ParkedUnit{}
	}

	return c.JSON(http.StatusOK, parkedResponse{Units: units})
}
