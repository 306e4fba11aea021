package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/docbook/docbook/pkg/apperr"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorHandler renders errors as {"error": "..."} and logs them. Client
// errors are logged at warn, everything else at error. Remote error details
// only reach the log.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolveError(err)

		evt := logger.Warn()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", status).
			Str("kind", string(apperr.KindOf(err))).
			Msg("request failed")

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func resolveError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.HTTPStatus(err), apperr.PublicMessage(err)
	}

	return http.StatusInternalServerError, "internal server error"
}
