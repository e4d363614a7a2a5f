package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Paths polled by infrastructure, logged at debug to keep the request log readable
var quietPaths = map[string]bool{
	"/health":       true,
	"/metrics":      true,
	"/queues/stats": true,
}

func NewLogger() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		startTime := time.Now()
		err = c.Next()

		msg := "HTTP Request"
		if err != nil {
			msg = err.Error()
			if handlerErr := c.App().Config().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		code := c.Response().StatusCode()

		ipAddress := c.IP()

		if cloudflareConnectingIP := c.Get("CF-Connecting-IP", ""); cloudflareConnectingIP != "" {
			ipAddress = cloudflareConnectingIP
		}

		requestLogger := log.With().
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", ipAddress).
			Dur("latency", time.Since(startTime)).
			Str("user-agent", c.Get(fiber.HeaderUserAgent)).
			Logger()

		var event *zerolog.Event
		switch {
		case code >= fiber.StatusBadRequest && code < fiber.StatusInternalServerError:
			event = requestLogger.Warn()
		case code >= http.StatusInternalServerError:
			event = requestLogger.Error()
		case quietPaths[c.Path()]:
			event = requestLogger.Debug()
		default:
			event = requestLogger.Info()
		}
		event.Msg(msg)

		return nil
	}
}
