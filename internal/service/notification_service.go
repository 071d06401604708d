package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-service/internal/config"
	"github.com/spec-kit/enrollment-service/internal/events"
)

// NotificationService emits notification stubs for enrollment events. Delivery
// itself belongs to an external system.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEnrollmentCreated, n.handleEnrollmentCreated)
	n.dispatcher.Subscribe(events.EventEnrollmentTransitioned, n.handleEnrollmentTransitioned)
}

func (n *NotificationService) handleEnrollmentCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("EnrollmentCreated", zap.String("enrollment_id", event.EnrollmentID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleEnrollmentTransitioned(ctx context.Context, event events.Event) error {
	n.logger.Info("EnrollmentTransitioned", zap.String("enrollment_id", event.EnrollmentID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.EnrollmentTransitionedPayload); ok && payload.NewStatus.IsTerminal() {
		n.sendEmailNotificationStub(ctx, event)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("event_type", string(event.Type)))
}
