// Package events mirrors batch progress onto a Kafka topic, so fleet
// activity can be audited or watched outside the driving process.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andrej220/fleetup/internal/fleet"
	"github.com/andrej220/fleetup/internal/lg"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Publisher writes batch events to a topic. Publishing is best-effort
// from the orchestrator's point of view: failures are logged by the
// caller, never fatal to a batch.
type Publisher struct {
	writer messageWriter
	lg     lg.Logger
}

func NewPublisher(brokers []string, topic string, logger lg.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		lg: logger,
	}
}

// Publish sends one event, keyed by job id so per-batch ordering survives
// partitioning.
func (p *Publisher) Publish(ctx context.Context, ev fleet.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Publisher) Close() error { return p.writer.Close() }
