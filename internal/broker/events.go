package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"price-tracker/internal/models"
	"price-tracker/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events to Kafka. Publishing happens after
// the database transaction commits; failures are logged and never fail the
// scan that produced the event.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, logger: util.GetLogger()}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishPriceChanged emits an event for one recorded price transition
func (ep *EventPublisher) PublishPriceChanged(ctx context.Context, source string, productID int64, name string,
	oldPrice, newPrice, oldUnitPrice, newUnitPrice decimal.NullDecimal, firstSeen bool) {

	event := models.PriceChangedEvent{
		BaseEvent:    newBaseEvent(models.EventTypePriceChanged),
		ProductID:    productID,
		Source:       source,
		Name:         name,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		OldUnitPrice: oldUnitPrice,
		NewUnitPrice: newUnitPrice,
		FirstSeen:    firstSeen,
	}
	ep.publish(ctx, fmt.Sprintf("%s-%d", source, productID), event)
}

// PublishScanCompleted emits an event summarizing a committed batch run
func (ep *EventPublisher) PublishScanCompleted(ctx context.Context, source string, processed, updated, errors int) {
	event := models.ScanCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeScanCompleted),
		Source:    source,
		Processed: processed,
		Updated:   updated,
		Errors:    errors,
	}
	ep.publish(ctx, source, event)
}

// PublishSitemapRefreshed emits an event summarizing a committed discovery run
func (ep *EventPublisher) PublishSitemapRefreshed(ctx context.Context, source string, products, newProducts int) {
	event := models.SitemapRefreshedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSitemapRefreshed),
		Source:      source,
		Products:    products,
		NewProducts: newProducts,
	}
	ep.publish(ctx, source, event)
}

func (ep *EventPublisher) publish(ctx context.Context, key string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		ep.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	if err := ep.producer.Publish(ctx, key, payload); err != nil {
		ep.logger.Warn("failed to publish event",
			zap.String("key", key), zap.Error(err))
	}
}
