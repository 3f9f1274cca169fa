// Package notify defines the delivery collaborator the engine emits events
// to. The engine never performs delivery itself; implementations wrap push,
// SMS, or email transports.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/clientbridge/engagement/internal/db/models"
)

type EventKind string

const (
	EventSignatureReminder EventKind = "SIGNATURE_REMINDER"
	EventExpirationWarning EventKind = "EXPIRATION_WARNING"
	EventScheduledUpdate   EventKind = "SCHEDULED_UPDATE"
	EventMilestoneUpdate   EventKind = "MILESTONE_UPDATE"
)

// Event carries enough identity for the notifier to format and deliver a
// message without calling back into the engine.
type Event struct {
	Kind        EventKind
	RecipientID string
	SubjectID   string
	Context     map[string]string
}

type DeliveryResult struct {
	Status models.DeliveryStatus
	Detail string
}

type Notifier interface {
	Deliver(ctx context.Context, event Event) (DeliveryResult, error)
}

// LogNotifier is the default delivery backend: it records the event in the
// log and reports it as sent. Real transports replace it in production wiring.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(zap.String("component", "notifier"))}
}

func (n *LogNotifier) Deliver(ctx context.Context, event Event) (DeliveryResult, error) {
	n.logger.Info("Delivering notification",
		zap.String("kind", string(event.Kind)),
		zap.String("recipient_id", event.RecipientID),
		zap.String("subject_id", event.SubjectID),
		zap.Any("context", event.Context))
	return DeliveryResult{Status: models.DeliverySent}, nil
}
