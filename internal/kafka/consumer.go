package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Consumer reads order events off the notifications topic as part of a
// consumer group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume delivers decoded order events to the handler until the context is
// canceled or the handler fails. Undecodable messages are logged and skipped
// so one bad payload cannot wedge the group.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, OrderEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		event, ok := decodeOrderEvent(msg.Value)
		if !ok {
			log.Warn().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("skipping undecodable order event")
			continue
		}

		if err := handler(ctx, event); err != nil {
			return err
		}
	}
}

func decodeOrderEvent(value []byte) (OrderEvent, bool) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return OrderEvent{}, false
	}
	return event, true
}
