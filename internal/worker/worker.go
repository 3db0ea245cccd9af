package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/observability"
	"github.com/spec-kit/tradebot/internal/scheduler"
	"github.com/spec-kit/tradebot/internal/service"
)

// ExpiryJobName identifies the listing sweep in the scheduler.
const ExpiryJobName = "listing-expiry"

// StartNotificationWorker subscribes the event log and counters to every
// domain event on dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) (*service.NotificationService, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("notification worker: dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	notifications := service.NewNotificationService(dispatcher, logger, metrics)
	notifications.RegisterHandlers()
	logger.Info("notification worker started", zap.Int("event_types", len(events.AllEventTypes)))
	return notifications, nil
}

// RegisterExpiryWorker schedules the listing expiry sweep.
func RegisterExpiryWorker(sched *scheduler.Scheduler, scanner *service.ExpiryScanner, schedule string, logger *zap.Logger) error {
	if sched == nil || scanner == nil {
		return fmt.Errorf("expiry worker: scheduler and scanner are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return sched.AddJob(ExpiryJobName, schedule, func(ctx context.Context) error {
		report, err := scanner.RunOnce(ctx)
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			logger.Warn("expiry sweep left listings active",
				zap.Int("failed", report.Failed),
				zap.Int("deactivated", report.Deactivated))
		}
		return nil
	})
}
