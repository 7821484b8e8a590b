package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/config"
	"github.com/spec-kit/ticket-channels/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to ticket
// events and reports which delivery routes are active.
func StartNotificationWorker(notifications *service.NotificationService, cfg config.NotificationConfig, logger *zap.Logger) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()

	if logger == nil {
		return
	}
	logger.Info("notification worker started",
		zap.Bool("direct_messages", cfg.DirectMsgs),
		zap.Bool("webhook", cfg.WebhookURL != ""),
		zap.Bool("email_stub", cfg.EmailFrom != ""))
}
