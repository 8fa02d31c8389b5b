// Package ingest consumes upstream form events from RabbitMQ and turns each
// into ingest jobs: one photo job per media name plus one pdf job per entry.
// Duplicate events (upstream re-delivery, webhook retries) are absorbed by the
// queue's origin-key dedup check; an event that only contains already-known
// work acks cleanly without creating anything.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Enqueuer is the slice of the queue the consumer drives.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.Job) error
}

// Consumer drains form events from the message broker.
type Consumer struct {
	rabbitClient *rabbitmq.Client
	queue        Enqueuer
	logger       *slog.Logger
	consumerTag  string
}

// NewConsumer creates a Consumer with a unique consumer tag.
func NewConsumer(rabbitClient *rabbitmq.Client, queue Enqueuer, logger *slog.Logger) *Consumer {
	return &Consumer{
		rabbitClient: rabbitClient,
		queue:        queue,
		logger:       logger,
		consumerTag:  "ingest-" + uuid.New().String(),
	}
}

// Run consumes form events until ctx is canceled. Malformed or unroutable
// events are nacked without requeue; transient enqueue failures are nacked
// with requeue so the broker re-delivers them.
func (c *Consumer) Run(ctx context.Context) error {
	channel := c.rabbitClient.GetChannel()
	if channel == nil {
		return fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.rabbitClient.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Form event consumer started",
		slog.String("consumer_tag", c.consumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Form event consumer stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var event FormEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		c.logger.Error("Failed to parse form event JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery, false)
		return
	}

	if err := event.Validate(); err != nil {
		c.logger.Error("Discarding unroutable form event",
			slog.String("error", err.Error()),
		)
		c.nack(delivery, false)
		return
	}

	enqueued, err := c.enqueueJobs(ctx, &event)
	if err != nil {
		c.logger.Error("Failed to enqueue jobs for form event",
			slog.Int("form_id", event.FormID),
			slog.Int("data_id", event.DataID),
			slog.String("error", err.Error()),
		)
		// Storage errors are transient; let the broker re-deliver.
		c.nack(delivery, true)
		return
	}

	c.logger.Info("Form event processed",
		slog.String("agency", event.AgencyCode),
		slog.Int("form_id", event.FormID),
		slog.Int("data_id", event.DataID),
		slog.Int("jobs_enqueued", enqueued),
	)

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK form event",
			slog.String("error", err.Error()),
		)
	}
}

// enqueueJobs creates one photo job per media and one pdf job for the entry.
// Duplicates are counted as already-known work, not failures.
func (c *Consumer) enqueueJobs(ctx context.Context, event *FormEvent) (int, error) {
	enqueued := 0

	for _, media := range event.Medias {
		if media == "" {
			c.logger.Warn("Skipping media with empty name",
				slog.Int("form_id", event.FormID),
				slog.Int("data_id", event.DataID),
			)
			continue
		}
		mediaName := media
		job := domain.Job{
			JobType:    domain.JobTypePhoto,
			AgencyCode: event.AgencyCode,
			FormID:     event.FormID,
			DataID:     event.DataID,
			MediaName:  &mediaName,
			IDContact:  event.IDContact,
			Priority:   event.Priority,
		}
		if err := c.queue.Enqueue(ctx, &job); err != nil {
			if errors.Is(err, domain.ErrDuplicateJob) {
				c.logger.Debug("Photo job already enqueued",
					slog.Int("form_id", event.FormID),
					slog.Int("data_id", event.DataID),
					slog.String("media_name", mediaName),
				)
				continue
			}
			return enqueued, err
		}
		enqueued++
	}

	pdfJob := domain.Job{
		JobType:    domain.JobTypePDF,
		AgencyCode: event.AgencyCode,
		FormID:     event.FormID,
		DataID:     event.DataID,
		IDContact:  event.IDContact,
		Priority:   event.Priority,
	}
	if err := c.queue.Enqueue(ctx, &pdfJob); err != nil {
		if !errors.Is(err, domain.ErrDuplicateJob) {
			return enqueued, err
		}
		c.logger.Debug("PDF job already enqueued",
			slog.Int("form_id", event.FormID),
			slog.Int("data_id", event.DataID),
		)
	} else {
		enqueued++
	}

	return enqueued, nil
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK form event",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
	}
}
