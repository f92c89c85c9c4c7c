package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/traffic-incident-etl/internal/config"
	"github.com/couchcryptid/traffic-incident-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// publishBatchSize caps the number of messages handed to a single
// WriteMessages call.
const publishBatchSize = 500

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes incident tables to a Kafka topic, one message per record.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes every record of the table and writes them in batches.
// Records keyed by ID land on the same partition on every reload.
func (w *Writer) Publish(ctx context.Context, table *domain.Table) error {
	if table == nil || len(table.Records) == 0 {
		return nil
	}

	batch := make([]kafkago.Message, 0, min(publishBatchSize, len(table.Records)))
	for i := range table.Records {
		msg, err := serializeToMessage(table.Records[i], table.LoadedAt)
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) == publishBatchSize {
			if err := w.writer.WriteMessages(ctx, batch...); err != nil {
				return fmt.Errorf("write incidents: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("write incidents: %w", err)
		}
	}

	w.logger.Debug("incidents written", "records", len(table.Records), "fingerprint", table.Fingerprint)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an IncidentRecord into a Kafka message.
func serializeToMessage(rec domain.IncidentRecord, loadedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident %s: %w", rec.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "city", Value: []byte(rec.City)},
			{Key: "month_bucket", Value: []byte(rec.MonthBucket)},
			{Key: "loaded_at", Value: []byte(loadedAt.Format(time.RFC3339))},
		},
	}, nil
}
