package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/metrics"
)

// Middleware converts errors returned by handlers into {error, code} JSON
// responses. Echo's own HTTPErrors (routing, body limits) pass through
// unchanged so their status codes are preserved. When hideDetail is set,
// internal error messages are not exposed to callers.
func Middleware(hideDetail bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structured := AsStructured(err)
			metrics.RequestErrorsTotal.WithLabelValues(string(structured.Code)).Inc()
			logError(c, structured)

			if err := c.JSON(structured.Status, structured.ToResponse(hideDetail)); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"code", err.Code,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.Status,
	}

	if err.Status >= http.StatusInternalServerError {
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Request failed", attrs...)
		return
	}
	slog.Info("Request rejected", attrs...)
}
