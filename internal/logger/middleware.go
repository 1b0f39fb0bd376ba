package logger

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeaderName = "x-request-id"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// RequestID returns the caller supplied request id or a freshly generated one.
func RequestID(c *fiber.Ctx) string {
	if requestID := c.Get(requestIDHeaderName, ""); requestID != "" {
		return requestID
	}

	return uuid.NewString()
}

// RequestMiddlewareLogger logs every request not matching excludedPrefix, storing a request
// scoped logger in the fiber user context.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		requestID := RequestID(c)
		reqLogger := logger.WithName("request").With("requestId", requestID)
		c.SetUserContext(WithContext(c.UserContext(), reqLogger))
		c.Set(requestIDHeaderName, requestID)

		reqLogger.Trace(IncomingRequestMessage,
			"method", c.Method(),
			"path", path,
			"userAgent", c.Get(fiber.HeaderUserAgent),
		)

		err := c.Next()

		status := c.Response().StatusCode()
		if fiberErr, ok := err.(*fiber.Error); ok {
			status = fiberErr.Code
		}

		reqLogger.Info(RequestCompletedMessage,
			"method", c.Method(),
			"path", path,
			"statusCode", status,
			"responseTime", float64(time.Since(start).Milliseconds()),
		)

		return err
	}
}
