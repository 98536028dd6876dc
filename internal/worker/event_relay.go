package worker

import (
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

// StartEventRelay registers the in-process event consumers: watcher
// notifications and, when Redis is configured, the pub/sub fan-out.
func StartEventRelay(dispatcher events.Dispatcher, notifications *service.NotificationService, publisher *events.RedisPublisher) {
	if dispatcher == nil {
		return
	}
	if notifications != nil {
		notifications.RegisterHandlers(dispatcher)
	}
	if publisher != nil {
		events.Forward(dispatcher, publisher.Handle)
	}
}
