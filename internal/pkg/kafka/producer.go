package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	// Async makes WriteMessages return as soon as the message is queued.
	Async bool `mapstructure:"async"`
}

// DefaultConfig returns producer defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "metax.catalog-records",
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
		Compression:  "snappy",
		Async:        true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	switch c.Compression {
	case "", "snappy", "gzip", "lz4", "zstd", "none":
	default:
		return errors.New("kafka: unsupported compression " + c.Compression)
	}
	return nil
}

// messageWriter is the subset of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger *logger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *Config, log *logger.Logger) (*Producer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	var compression kafka.Compression = kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("kafka async write failed",
					zap.Int("batch_size", len(messages)),
					zap.Error(err),
				)
			}
		},
	}

	log.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("async", cfg.Async),
	)

	return newProducer(writer, cfg.Topic, log), nil
}

func newProducer(w messageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{
		writer: w,
		logger: log,
		topic:  topic,
	}
}

// Close closes the producer, flushing pending async messages
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RecordEvent is the wire form of a catalog record lifecycle event
type RecordEvent struct {
	EventType     string          `json:"event_type"` // created, updated, deleted
	RecordID      int64           `json:"record_id"`
	URNIdentifier string          `json:"urn_identifier"`
	Preferred     string          `json:"preferred_identifier"`
	DataCatalog   string          `json:"data_catalog"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishRecordEvent publishes a record event, keyed by urn identifier so
// every event of one record lands on the same partition
func (p *Producer) PublishRecordEvent(ctx context.Context, event *RecordEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.URNIdentifier),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "data_catalog", Value: []byte(event.DataCatalog)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	log := p.logger.WithContext(ctx)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error("failed to publish record event",
			zap.String("event_type", event.EventType),
			zap.String("urn_identifier", event.URNIdentifier),
			zap.Error(err),
		)
		return err
	}

	log.Debug("published record event",
		zap.String("event_type", event.EventType),
		zap.String("urn_identifier", event.URNIdentifier),
	)
	return nil
}
