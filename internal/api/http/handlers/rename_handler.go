package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-channels/internal/api/dto"
	"github.com/spec-kit/ticket-channels/internal/observability"
	"github.com/spec-kit/ticket-channels/internal/service"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// maxChannelName is the platform's channel name limit.
const maxChannelName = 100

// OpsHandler exposes operator endpoints: manual renames and counters.
type OpsHandler struct {
	renames service.RenameScheduler
	metrics *observability.Metrics
}

// NewOpsHandler constructs handler.
func NewOpsHandler(renames service.RenameScheduler, metrics *observability.Metrics) *OpsHandler {
	return &OpsHandler{renames: renames, metrics: metrics}
}

// ScheduleRename POST /channels/:channel/rename. The rename is applied
// asynchronously by the limiter.
func (h *OpsHandler) ScheduleRename(c *fiber.Ctx) error {
	var req dto.RenameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxChannelName {
		return apperrors.NewValidationError("name must be 1-100 characters", nil)
	}
	channel := c.Params("channel")
	h.renames.Schedule(channel, name)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"channel_ref": channel,
		"name":        name,
	}})
}

// Metrics GET /metrics.
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
