package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-channels/internal/api/dto"
	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/service"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// ConfigHandler manages guild configuration and assignment previews.
type ConfigHandler struct {
	configs *service.ConfigService
	tickets *service.TicketService
}

// NewConfigHandler constructs handler.
func NewConfigHandler(configs *service.ConfigService, tickets *service.TicketService) *ConfigHandler {
	return &ConfigHandler{configs: configs, tickets: tickets}
}

// GetConfig GET /guilds/:guild/config.
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	cfg, err := h.configs.GetConfig(c.UserContext(), c.Params("guild"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGuildConfigResponse(cfg)})
}

// PutConfig PUT /guilds/:guild/config.
func (h *ConfigHandler) PutConfig(c *fiber.Ctx) error {
	var req dto.GuildConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	guildID := c.Params("guild")
	in, err := req.ToDomain(guildID)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	cfg, err := h.configs.PutConfig(c.UserContext(), guildID, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGuildConfigResponse(cfg)})
}

// PreviewAssignee POST /guilds/:guild/assignment/preview.
func (h *ConfigHandler) PreviewAssignee(c *fiber.Ctx) error {
	var req dto.AssignmentPreviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	preview, err := h.tickets.PreviewAssignee(c.UserContext(), c.Params("guild"), req.Topic, domain.Priority(req.Priority))
	if err != nil {
		return err
	}
	eligible := preview.Eligible
	if eligible == nil {
		eligible = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.AssignmentPreviewResponse{
		MemberID: preview.MemberID,
		Picked:   preview.Picked,
		Enabled:  preview.Enabled,
		Strategy: preview.Strategy,
		Eligible: eligible,
	}})
}
