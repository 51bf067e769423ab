package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"

	"github.com/folioreads/folio/pkg/config"
	"github.com/folioreads/folio/pkg/errcodes"
	"github.com/folioreads/folio/pkg/formats"
	"github.com/folioreads/folio/pkg/library"
)

// New builds the read-only HTTP surface over an open library: record
// metadata as JSON, and format and cover files served with range support.
func New(cfg *config.Config, lib *library.Library) (*http.Server, error) {
	e := echo.New()

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	h := &handler{lib: lib}
	e.GET("/records/:id", h.getRecord)
	e.GET("/records/:id/formats", h.listFormats)
	e.GET("/records/:id/formats/:format", h.getFormatFile)
	e.GET("/records/:id/cover", h.getCover)

	e.HTTPErrorHandler = errorHandler

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

type handler struct {
	lib *library.Library
}

func (h *handler) recordID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errcodes.NotFound("record")
	}
	return id, nil
}

func (h *handler) getRecord(c echo.Context) error {
	id, err := h.recordID(c)
	if err != nil {
		return err
	}
	record, err := h.lib.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, record)
}

func (h *handler) listFormats(c echo.Context) error {
	id, err := h.recordID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.lib.Get(ctx, id); err != nil {
		return err
	}
	tags, err := h.lib.Formats.Formats(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"formats": tags})
}

func (h *handler) getFormatFile(c echo.Context) error {
	id, err := h.recordID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	dir, err := h.lib.RecordDir(ctx, id)
	if err != nil {
		return err
	}
	path, err := h.lib.Formats.FormatAbsPath(ctx, id, c.Param("format"), dir)
	if err != nil {
		return err
	}
	return c.Attachment(path, filepath.Base(path))
}

func (h *handler) getCover(c echo.Context) error {
	id, err := h.recordID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	record, err := h.lib.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.HasCover {
		return errcodes.NotFound("cover")
	}
	dir, err := h.lib.RecordDir(ctx, id)
	if err != nil {
		return err
	}
	return c.File(filepath.Join(dir, formats.CoverFileName))
}

// errorHandler translates engine errors into HTTP statuses so handlers
// can return them directly.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error."

	switch code := errcodes.Code(err); code {
	case errcodes.CodeNotFound, errcodes.CodeNoSuchFormat:
		status = http.StatusNotFound
		message = err.Error()
	case errcodes.CodeInvalidKey, errcodes.CodePathTooLong:
		status = http.StatusBadRequest
		message = err.Error()
	case errcodes.CodeConflict, errcodes.CodeConstraint:
		status = http.StatusConflict
		message = err.Error()
	case errcodes.CodeBusy:
		status = http.StatusServiceUnavailable
		message = err.Error()
	default:
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, map[string]any{"error": message})
}
