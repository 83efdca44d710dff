package impressions

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"ad-control-service/internal/metrics"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event is the payload published to the ad-events stream for downstream
// analytics.
type Event struct {
	ImpressionID string    `json:"impression_id"`
	CampaignID   uint      `json:"campaign_id"`
	AdType       string    `json:"ad_type"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventQueue decouples the request path from Kafka: events are buffered and
// written in batches; when the buffer is full events are dropped, never
// blocking an ad decision.
type EventQueue struct {
	events chan Event
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewEventQueue accepts a nil writer, in which case events are consumed and
// discarded (tests, kafka-less dev setups).
func NewEventQueue(writer *kafka.Writer, logger *logrus.Logger, bufferSize int) *EventQueue {
	return &EventQueue{
		events: make(chan Event, bufferSize),
		writer: writer,
		logger: logger,
	}
}

func (q *EventQueue) Enqueue(event Event) bool {
	select {
	case q.events <- event:
		metrics.QueueSize.Set(float64(len(q.events)))
		return true
	default:
		q.logger.Warn("Event queue is full, dropping event")
		return false
	}
}

func (q *EventQueue) StartProcessor(ctx context.Context) {
	batchSize := 100
	batchTimeout := 5 * time.Second
	batch := make([]Event, 0, batchSize)
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				q.publishBatch(batch)
			}
			return
		case event := <-q.events:
			batch = append(batch, event)
			if len(batch) >= batchSize {
				q.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(batchTimeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				q.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(batchTimeout)
		}
	}
}

func (q *EventQueue) publishBatch(events []Event) {
	metrics.ImpressionsProcessed.Add(float64(len(events)))
	metrics.QueueSize.Set(float64(len(q.events)))

	if q.writer == nil {
		return
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			q.logger.WithError(err).Error("Failed to marshal event")
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(event.CampaignID), 10)),
			Value: value,
		})
	}
	if len(messages) == 0 {
		return
	}

	if err := q.writer.WriteMessages(context.Background(), messages...); err != nil {
		q.logger.WithError(err).Error("Failed to write events to Kafka")
	}
}
