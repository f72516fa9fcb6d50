package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/services"
)

// Machine-readable error codes carried in the error envelope.
const (
	ErrCodeQueueFull   = "queue_full"
	ErrCodeRateLimited = "rate_limited"
)

// envelopeError carries a structured error envelope through handler returns.
// Plain string errors use echo.NewHTTPError; this type is for responses that
// need an error_code alongside the detail.
type envelopeError struct {
	code int
	resp *ErrorResponse
}

func (e *envelopeError) Error() string { return e.resp.Detail }

// StatusCode implements echo.HTTPStatusCoder.
func (e *envelopeError) StatusCode() int { return e.code }

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) error {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	if errors.Is(err, services.ErrQueueFull) {
		return &envelopeError{
			code: http.StatusServiceUnavailable,
			resp: &ErrorResponse{
				Detail:    "analysis queue is at capacity, retry later",
				ErrorCode: ErrCodeQueueFull,
			},
		}
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// httpErrorHandler renders every error as the standard envelope
// {detail, error_code?, timestamp}.
func httpErrorHandler(c *echo.Context, err error) {
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}

	code := http.StatusInternalServerError
	resp := &ErrorResponse{Detail: "internal server error"}

	var ee *envelopeError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ee):
		code = ee.code
		resp = ee.resp
	case errors.As(err, &he):
		code = he.Code
		if he.Message != "" {
			resp.Detail = he.Message
		} else {
			resp.Detail = http.StatusText(code)
		}
	default:
		slog.Error("Unhandled request error", "error", err)
	}

	resp.Timestamp = time.Now().UTC()
	if jsonErr := c.JSON(code, resp); jsonErr != nil {
		slog.Error("Failed to write error response", "error", jsonErr)
	}
}
