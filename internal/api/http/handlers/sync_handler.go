package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-service/internal/api/dto"
	"github.com/spec-kit/maintenance-service/internal/service"
)

// SyncHandler exposes the manual resync operation and the integration
// log/statistics surface.
type SyncHandler struct {
	service *service.SyncService
}

// NewSyncHandler constructs handler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{service: syncService}
}

// Resync POST /tickets/:id/resync.
func (h *SyncHandler) Resync(c *fiber.Ctx) error {
	outcome, err := h.service.Resync(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": outcome})
}

// ExternalStatus GET /tickets/:id/external-status.
func (h *SyncHandler) ExternalStatus(c *fiber.Ctx) error {
	status, err := h.service.ExternalStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// IntegrationLog GET /tickets/:id/integration-log.
func (h *SyncHandler) IntegrationLog(c *fiber.Ctx) error {
	entries, err := h.service.Log(c.UserContext(), c.Params("id"),
		parseIntQuery(c, "limit", 50), parseIntQuery(c, "offset", 0))
	if err != nil {
		return err
	}
	items := make([]dto.IntegrationLogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.FromLogEntry(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Statistics GET /integration/stats.
func (h *SyncHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
