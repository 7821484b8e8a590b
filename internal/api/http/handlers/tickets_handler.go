package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-channels/internal/api/dto"
	"github.com/spec-kit/ticket-channels/internal/auth"
	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/lifecycle"
	"github.com/spec-kit/ticket-channels/internal/repository"
	"github.com/spec-kit/ticket-channels/internal/service"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// TicketsHandler exposes ticket creation, lookup and transitions.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /guilds/:guild/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Topic:    req.Topic,
		FormData: req.FormData,
		Priority: domain.Priority(req.Priority),
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), c.Params("guild"), input, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /guilds/:guild/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), c.Params("guild"), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /guilds/:guild/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("guild"), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListHistory GET /guilds/:guild/tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	history, err := h.service.ListHistory(c.UserContext(), c.Params("guild"), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(history)})
}

// Transition POST /guilds/:guild/tickets/:id/actions/:action.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	action, ok := lifecycle.ParseAction(c.Params("action"))
	if !ok {
		return apperrors.NewValidationError("unknown action", map[string]any{"action": c.Params("action")})
	}
	var req dto.TransitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	args := lifecycle.Args{
		Reason:        req.Reason,
		UserID:        req.UserID,
		Text:          req.Text,
		Tag:           req.Tag,
		ApprovalToken: req.ApprovalToken,
	}
	ticket, out, err := h.service.Transition(c.UserContext(), c.Params("guild"), id, action, actor, args)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionResponse{
		Ticket:  dto.NewTicketResponse(ticket),
		Action:  string(out.Action),
		From:    out.From,
		To:      out.To,
		Changed: out.Changed,
	}})
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{ClaimerID: strings.TrimSpace(c.Query("claimer"))}
	if statusStr := strings.ToUpper(strings.TrimSpace(c.Query("status"))); statusStr != "" {
		status := domain.TicketStatus(statusStr)
		if status != domain.TicketStatusOpen && status != domain.TicketStatusClosed {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": statusStr})
		}
		filter.Status = &status
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
