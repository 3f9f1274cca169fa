package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/db/models"
	"github.com/clientbridge/engagement/internal/store"
)

// ContextProgressUpdateID is the event context key that ties a delivery back
// to a progress update; events carrying it get an UpdateNotification record.
const ContextProgressUpdateID = "progress_update_id"

// Dispatcher hands events to the notifier without blocking the caller on
// delivery. Delivery outcome is written back asynchronously.
type Dispatcher struct {
	store    store.NotificationStore
	notifier Notifier
	logger   *zap.Logger
}

func NewDispatcher(st store.NotificationStore, notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch records a PENDING UpdateNotification for progress-update events,
// then delivers in the background and stamps the outcome. Signature-request
// events have no progress update to attach a record to and are delivered
// fire-and-forget.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, sentAt time.Time) {
	var record *models.UpdateNotification
	if progressUpdateID := event.Context[ContextProgressUpdateID]; progressUpdateID != "" {
		record = &models.UpdateNotification{
			ID:               uuid.New().String(),
			ProgressUpdateID: progressUpdateID,
			RecipientID:      event.RecipientID,
			NotificationType: string(event.Kind),
			SentAt:           sentAt,
			DeliveryStatus:   models.DeliveryPending,
		}
		if err := d.store.InsertNotification(ctx, record); err != nil {
			d.logger.Error("Failed to record notification",
				zap.String("kind", string(event.Kind)), zap.Error(err))
			record = nil
		}
	}

	go d.deliver(event, record)
}

func (d *Dispatcher) deliver(event Event, record *models.UpdateNotification) {
	// Detached from the caller's context: the emitting sweep or request must
	// never block on (or be cancelled into losing) the delivery outcome.
	ctx := context.Background()

	result, err := d.notifier.Deliver(ctx, event)
	if record == nil {
		if err != nil {
			d.logger.Warn("Notification delivery failed",
				zap.String("kind", string(event.Kind)),
				zap.String("recipient_id", event.RecipientID),
				zap.Error(err))
		}
		return
	}

	if err != nil {
		record.DeliveryStatus = models.DeliveryFailed
	} else {
		record.DeliveryStatus = result.Status
	}
	if rerr := d.store.ReplaceNotification(ctx, record); rerr != nil {
		d.logger.Error("Failed to record delivery outcome",
			zap.String("notification_id", record.ID), zap.Error(rerr))
	}
}
