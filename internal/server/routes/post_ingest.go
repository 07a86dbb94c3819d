package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trestle-legal/docket/internal/queue"
	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/internal/storage"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IngestHandler accepts raw source material as multipart/form-data,
// archives it to S3 and enqueues one ingestion unit. The pipeline picks
// the unit up asynchronously; 202 means accepted, not merged.
func IngestHandler(c echo.Context) error {
	type ingestBody struct {
		Kind        string `form:"kind" validate:"required,oneof=email phone_call document"`
		CaseNumber  string `form:"case_number"`
		AuthorEmail string `form:"author_email"`
		DocTypeHint string `form:"doc_type_hint"`
	}

	type ingestResponse struct {
		Message string `json:"message"`
		UnitID  string `json:"unit_id,omitempty"`
	}

	data := new(ingestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Invalid request body"})
	}

	upload, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Missing file"})
	}
	file, err := upload.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{Message: "Invalid file"})
	}
	defer file.Close()

	unitID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{Message: "Internal server error"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	pointer, err := storage.PutSource(ctx, app.S3, "sources/"+data.Kind, upload.Filename, unitID, file)
	if err != nil {
		logger.Error("Failed to archive source material", "unit_id", unitID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{Message: "Internal server error"})
	}

	msg, err := json.Marshal(queue.IngestMessage{
		UnitID:        unitID,
		Kind:          data.Kind,
		SourcePointer: pointer,
		CaseNumber:    billing.NormalizeCaseNumber(data.CaseNumber),
		ReceivedAt:    time.Now().UTC(),
		AuthorEmail:   data.AuthorEmail,
		DocTypeHint:   data.DocTypeHint,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{Message: "Internal server error"})
	}

	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, msg); err != nil {
		logger.Error("Failed to enqueue ingestion unit", "unit_id", unitID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, ingestResponse{
		Message: "Unit accepted",
		UnitID:  unitID,
	})
}
