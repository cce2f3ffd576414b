package http

import (
	"errors"
	"net/http"

	"funfund-ledger/internal/domain/funding"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// writeError maps domain errors onto status codes.
func writeError(c echo.Context, err error) error {
	var (
		ve *funding.ValidationError
		oe *funding.OverdrawError
		se *funding.StateError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Code:    "validation_error",
			Details: []FieldError{{Field: ve.Field, Message: ve.Message}},
		})
	case errors.As(err, &oe):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: oe.Error(), Code: "overdraw"})
	case errors.As(err, &se):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: se.Error(), Code: "invalid_state"})
	case errors.Is(err, funding.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "request was modified concurrently, reload and retry", Code: "conflict"})
	case errors.Is(err, funding.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: "not_found"})
	case errors.Is(err, funding.ErrUnavailable):
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("funding store unavailable")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable", Code: "unavailable"})
	default:
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("unhandled error")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
	}
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: "bad_request"})
}

func invalidBody(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Code:    "validation_error",
		Details: ToFieldErrors(err),
	})
}
