package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/query"

	"github.com/labstack/echo/v4"
)

// GetBillableEventsHandler lists a case's billable events. Optional
// query parameters: from/to (RFC 3339, [from, to)) and status (comma
// separated; defaults to draft).
func GetBillableEventsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	svc := query.NewService(app.Billing)

	req := query.EventsRequest{CaseNumber: c.Param("number")}

	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid from timestamp"})
		}
		req.From = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid to timestamp"})
		}
		req.To = t
	}
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := billing.EventStatus(strings.TrimSpace(s))
			switch status {
			case billing.EventDraft, billing.EventApproved, billing.EventRejected:
				req.Statuses = append(req.Statuses, status)
			default:
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid status filter"})
			}
		}
	}

	resp, err := svc.ListBillableEvents(c.Request().Context(), req)
	if err != nil {
		if billing.IsUnknownCase(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown case"})
		}
		logger.Error("Failed to list billable events", "case", req.CaseNumber, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, resp)
}
