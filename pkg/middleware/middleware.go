package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/oak/pkg/context"
)

// Context stamps every request with a request id.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := appctx.SetRequestID(req.Context(), requestID)
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":    appctx.GetRequestID(req.Context()),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start),
			}).Debug("Request")

			return nil
		}
	}
}

// Error renders domain and http errors as JSON with the right status code.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var echoErr *echo.HTTPError
		var domainErr interface{ ToHTTPError() *httperror.HTTPError }
		switch {
		case errors.As(err, &echoErr):
			status = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		case errors.As(err, &domainErr):
			httpErr := domainErr.ToHTTPError()
			status = httperror.GetStatusCode(httpErr)
			message = httpErr.Error()
		case httperror.IsHTTPError(err):
			status = httperror.GetStatusCode(err)
			message = httperror.ToHTTPError(err).Error()
		}

		if status >= http.StatusInternalServerError {
			logger.WithContext(c.Request().Context()).WithError(err).Error("Request failed")
		}

		_ = c.JSON(status, map[string]any{
			"error":      message,
			"request_id": appctx.GetRequestID(c.Request().Context()),
		})
	}
}
