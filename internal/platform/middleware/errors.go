package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

// ErrorHandler returns a custom echo HTTPErrorHandler that renders domain
// errors as a JSON envelope with a stable machine-readable code. Handlers
// can return a *domainerrors.Error (or anything wrapping one) directly and
// the status code is derived from the error code.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		code := domainerrors.CodeInternal
		message := "internal server error"

		var derr *domainerrors.Error
		if echoErr, ok := err.(*echo.HTTPError); ok {
			status = echoErr.Code
			code = domainerrors.CodeBadRequest
			if status == http.StatusNotFound {
				code = domainerrors.CodeNotFound
			}
			if m, ok := echoErr.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else if errors.As(err, &derr) {
			code = derr.Code
			status = domainerrors.HTTPStatus(code)
			message = derr.Message
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		}

		_ = c.JSON(status, map[string]string{
			"code":    string(code),
			"message": message,
		})
	}
}
