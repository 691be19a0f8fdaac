package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/andrej220/fleetup/internal/fleet"
)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

// Consumer tails the event topic. Messages are committed after a
// successful decode, so a crashed tailer resumes where it stopped.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &Consumer{reader: r}
}

func (c *Consumer) Read(ctx context.Context) (fleet.Event, error) {
	var zero fleet.Event

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return zero, err
	}

	var ev fleet.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return zero, err
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return zero, err
	}

	return ev, nil
}

func (c *Consumer) Close() error { return c.reader.Close() }
