package routes

import (
	"errors"
	"net/http"

	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/query"

	"github.com/labstack/echo/v4"
)

// ApproveEventHandler moves a draft billable event to approved.
func ApproveEventHandler(c echo.Context) error {
	return decide(c, billing.EventApproved)
}

// RejectEventHandler moves a draft billable event to rejected.
func RejectEventHandler(c echo.Context) error {
	return decide(c, billing.EventRejected)
}

func decide(c echo.Context, next billing.EventStatus) error {
	type decisionResponse struct {
		Message string         `json:"message"`
		Event   *billing.Event `json:"event,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	svc := query.NewService(app.Billing)
	eventID := c.Param("id")

	var (
		event billing.Event
		err   error
	)
	if next == billing.EventApproved {
		event, err = svc.Approve(c.Request().Context(), eventID)
	} else {
		event, err = svc.Reject(c.Request().Context(), eventID)
	}

	switch {
	case errors.Is(err, billing.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, decisionResponse{Message: "Billable event not found"})
	case errors.Is(err, billing.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, decisionResponse{Message: "Event is no longer a draft"})
	case err != nil:
		logger.Error("Failed to decide billable event", "event_id", eventID, "err", err)
		return c.JSON(http.StatusInternalServerError, decisionResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, decisionResponse{
		Message: "Event " + string(next),
		Event:   &event,
	})
}
