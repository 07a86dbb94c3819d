package routes

import (
	"context"
	"net/http"

	"github.com/trestle-legal/docket/internal/server/middleware"
	"github.com/trestle-legal/docket/internal/storage"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetRecordSourceHandler returns a presigned download link for the raw
// source material behind a record, for audit during billing review.
func GetRecordSourceHandler(c echo.Context) error {
	type sourceResponse struct {
		URL string `json:"url"`
	}

	app := c.(*middleware.AppContext).App
	key := c.Param("key")

	var record *billing.Record
	err := app.Billing.WithTx(c.Request().Context(), func(ctx context.Context, tx store.Tx) error {
		var txErr error
		record, txErr = tx.GetRecord(ctx, key)
		return txErr
	})
	if err != nil {
		logger.Error("Failed to look up record", "record", key, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if record == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown record"})
	}
	if record.SourcePointer == "" {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Record has no archived source"})
	}

	url, err := storage.GenerateDownloadLink(c.Request().Context(), app.S3, record.SourcePointer)
	if err != nil {
		logger.Error("Failed to presign source link", "record", key, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, sourceResponse{URL: url})
}
