package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/config"
	"github.com/spec-kit/ticket-channels/internal/events"
	"github.com/spec-kit/ticket-channels/internal/platform"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	platform   platform.Adapter
	logger     *zap.Logger
	cfg        config.NotificationConfig
	timeout    time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, adapter platform.Adapter, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		platform:   adapter,
		logger:     logger,
		cfg:        cfg,
		timeout:    5 * time.Second,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketPriorityChanged, n.handleWebhookOnly)
	n.dispatcher.Subscribe(events.EventTicketCloseRequested, n.handleCloseRequested)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", eventFields(event)...)
	if event.Ticket != nil {
		n.sendDirect(ctx, event.Ticket.CreatorID, fmt.Sprintf("Your ticket #%04d has been opened in <#%s>.", event.TicketID, event.Ticket.ChannelRef))
	}
	n.sendEmailNotificationStub(ctx, event)
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", eventFields(event)...)
	if p, ok := event.Payload.(events.TicketAssignedPayload); ok {
		n.sendDirect(ctx, p.MemberID, fmt.Sprintf("Ticket #%04d was assigned to you.", event.TicketID))
	}
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleWebhookOnly(ctx context.Context, event events.Event) error {
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleCloseRequested(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCloseRequested", eventFields(event)...)
	p, ok := event.Payload.(events.TicketCloseRequestedPayload)
	if !ok || event.Ticket == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "A responder asked to close ticket #%04d.", event.TicketID)
	if p.Reason != "" {
		fmt.Fprintf(&b, " Reason: %s.", p.Reason)
	}
	if p.Token != "" {
		fmt.Fprintf(&b, "\nTo confirm, close the ticket with this approval code (valid until %s):\n%s",
			p.ExpiresAt.UTC().Format(time.RFC1123), p.Token)
	}
	n.sendDirect(ctx, event.Ticket.CreatorID, b.String())
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketClosed", eventFields(event)...)
	if event.Ticket != nil {
		msg := fmt.Sprintf("Your ticket #%04d has been closed.", event.TicketID)
		if event.Ticket.CloseReason != "" {
			msg += " Reason: " + event.Ticket.CloseReason
		}
		n.sendDirect(ctx, event.Ticket.CreatorID, msg)
	}
	n.sendEmailNotificationStub(ctx, event)
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) sendDirect(ctx context.Context, userID, content string) {
	if !n.cfg.DirectMsgs || n.platform == nil || userID == "" {
		return
	}
	if err := n.platform.SendDirect(ctx, userID, platform.Message{Content: content}); err != nil {
		n.logger.Warn("direct message failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

// webhookBody is the JSON posted to the notification webhook.
type webhookBody struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	GuildID   string           `json:"guild_id"`
	TicketID  int64            `json:"ticket_id"`
	ActorID   string           `json:"actor_id"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   interface{}      `json:"payload,omitempty"`
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.Post(url)
	agent.Timeout(n.timeout)
	agent.JSON(webhookBody{
		ID:        event.ID,
		Type:      event.Type,
		GuildID:   event.GuildID,
		TicketID:  event.TicketID,
		ActorID:   event.Actor.ID,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, errs[0])
	}
	if status >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook %s: status %d", event.Type, status)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID))
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("guild_id", event.GuildID),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.ID),
	}
}
