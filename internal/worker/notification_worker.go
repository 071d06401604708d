package worker

import (
	"github.com/spec-kit/enrollment-service/internal/events"
	"github.com/spec-kit/enrollment-service/internal/service"
)

// StartNotificationWorker registers the event consumers: notification stubs and,
// when configured, the Redis stream publisher.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher, publisher *events.RedisStreamPublisher) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if publisher != nil {
		publisher.Register(dispatcher)
	}
}
