package routes

import (
	"encoding/json"
	"net/http"

	"github.com/trestle-legal/docket/internal/queue"
	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateCaseHandler registers a case and announces it so units parked
// on the case number get requeued.
func CreateCaseHandler(c echo.Context) error {
	type createCaseBody struct {
		Number string `json:"number" validate:"required"`
		Name   string `json:"name" validate:"required"`
	}

	type createCaseResponse struct {
		Message string        `json:"message"`
		Case    *billing.Case `json:"case,omitempty"`
	}

	data := new(createCaseBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createCaseResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createCaseResponse{
			Message: "Invalid request body",
		})
	}

	number := billing.NormalizeCaseNumber(data.Number)
	if number == "" {
		return c.JSON(http.StatusBadRequest, createCaseResponse{
			Message: "Invalid case number",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	newCase := billing.Case{
		Number: number,
		Name:   data.Name,
		Status: billing.CaseOpen,
	}
	if err := app.Billing.CreateCase(ctx, newCase); err != nil {
		logger.Error("Failed to create case", "case", number, "err", err)
		return c.JSON(http.StatusInternalServerError, createCaseResponse{
			Message: "Internal server error",
		})
	}

	announcement, _ := json.Marshal(queue.CaseRegisteredMessage{CaseNumber: number})
	if err := queue.PublishFIFO(app.Queue, queue.CaseQueue, announcement); err != nil {
		// The case row is committed; parked units stay parked until the
		// next announcement for this number.
		logger.Error("Failed to announce case", "case", number, "err", err)
	}

	return c.JSON(http.StatusCreated, createCaseResponse{
		Message: "Case registered",
		Case:    &newCase,
	})
}
