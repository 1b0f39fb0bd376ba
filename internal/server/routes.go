package server

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

type statusResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// statusRoutes registers the liveness and readiness probes under the /-/ prefix.
func statusRoutes(app *fiber.App, name, version string) {
	handler := func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(statusResponse{
			Status:  "OK",
			Name:    name,
			Version: version,
			Time:    time.Now().UTC().Format(time.RFC3339),
		})
	}

	group := app.Group("/-")
	group.Get("/healthz", handler)
	group.Get("/ready", handler)
}

// handleRunStatus returns the latest pipeline run status
func handleRunStatus(provider StatusProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(provider.Status())
	}
}
