package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/kafka"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// Message is the JSON form of a lifecycle event on the redis channel
type Message struct {
	EventType           string          `json:"event_type"`
	RecordID            int64           `json:"record_id"`
	URNIdentifier       string          `json:"urn_identifier"`
	PreferredIdentifier string          `json:"preferred_identifier"`
	DataCatalog         string          `json:"data_catalog"`
	State               string          `json:"state"`
	Title               string          `json:"title,omitempty"`
	Record              json.RawMessage `json:"record,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
}

// NewMessage flattens an event. The title is lifted out of the opaque
// part of research_dataset so subscribers need not parse the document.
func NewMessage(event types.Event) (*Message, error) {
	if event.Record == nil {
		return nil, errors.New("events: event has no record")
	}
	doc, err := json.Marshal(event.Record)
	if err != nil {
		return nil, fmt.Errorf("events: failed to marshal record: %w", err)
	}

	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{
		EventType:           string(event.Type),
		RecordID:            event.Record.ID,
		URNIdentifier:       event.Record.URNIdentifier,
		PreferredIdentifier: event.Record.PreferredIdentifier,
		DataCatalog:         event.DataCatalog,
		State:               string(event.Record.State()),
		Title:               datasetTitle(doc),
		Record:              doc,
		Timestamp:           ts,
	}, nil
}

// datasetTitle prefers the english title and falls back to the first language
func datasetTitle(record []byte) string {
	title := gjson.GetBytes(record, "research_dataset.title")
	if !title.Exists() {
		return ""
	}
	if title.Type == gjson.String {
		return title.String()
	}
	if en := title.Get("en"); en.Exists() {
		return en.String()
	}
	var first string
	title.ForEach(func(_, value gjson.Result) bool {
		first = value.String()
		return false
	})
	return first
}

// channelPublisher is the part of the redis client the publisher uses
type channelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
}

// RedisPublisher publishes events on a redis pub/sub channel
type RedisPublisher struct {
	client  channelPublisher
	channel string
	logger  *logger.Logger
}

func NewRedisPublisher(client channelPublisher, channel string, log *logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: log}
}

var _ biz.EventPublisher = (*RedisPublisher)(nil)

func (p *RedisPublisher) Publish(ctx context.Context, event types.Event) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("events: failed to marshal message: %w", err)
	}

	n, err := p.client.Publish(ctx, p.channel, payload)
	if err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	p.logger.WithContext(ctx).Debug("catalog record event published",
		zap.String("channel", p.channel),
		zap.String("event_type", msg.EventType),
		zap.Int64("receivers", n),
	)
	return nil
}

// recordEventWriter is the part of the kafka producer the publisher uses
type recordEventWriter interface {
	PublishRecordEvent(ctx context.Context, event *kafka.RecordEvent) error
}

// KafkaPublisher writes events to the record events topic
type KafkaPublisher struct {
	producer recordEventWriter
}

func NewKafkaPublisher(producer recordEventWriter) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

var _ biz.EventPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, event types.Event) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	return p.producer.PublishRecordEvent(ctx, &kafka.RecordEvent{
		EventType:     msg.EventType,
		RecordID:      msg.RecordID,
		URNIdentifier: msg.URNIdentifier,
		Preferred:     msg.PreferredIdentifier,
		DataCatalog:   msg.DataCatalog,
		Data:          msg.Record,
		Timestamp:     msg.Timestamp,
	})
}

// MultiPublisher fans an event out to every backend. Every backend is
// tried; the errors are joined.
type MultiPublisher []biz.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event types.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, types.Event) error { return nil }
