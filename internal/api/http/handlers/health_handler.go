package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-service/internal/persistence"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName    string
	version        string
	mappingVersion string
	postgres       *persistence.Postgres
	cedar          *persistence.Cedar
	redis          *persistence.Redis
}

// NewHealthHandler returns a new handler instance. mappingVersion identifies
// the Cedar status translation table in use, so operators can confirm which
// wire contract a deployment speaks.
func NewHealthHandler(serviceName, version, mappingVersion string, postgres *persistence.Postgres, cedar *persistence.Cedar, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		serviceName:    serviceName,
		version:        version,
		mappingVersion: mappingVersion,
		postgres:       postgres,
		cedar:          cedar,
		redis:          redis,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "alive",
		"service":       h.serviceName,
		"version":       h.version,
		"cedar_mapping": h.mappingVersion,
	})
}

// Ready reports service readiness by checking dependencies. Cedar being down
// degrades sync but not ticket operations, so it is reported without failing
// readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if err := h.postgres.Ping(ctx); err != nil {
		depStatus["postgres"] = err.Error()
		ready = false
	} else {
		depStatus["postgres"] = "ok"
	}

	if err := h.cedar.Ping(ctx); err != nil {
		depStatus["cedar"] = err.Error()
	} else {
		depStatus["cedar"] = "ok"
	}

	if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
	} else {
		depStatus["redis"] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":        "ready",
			"cedar_mapping": h.mappingVersion,
			"dependencies":  depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
