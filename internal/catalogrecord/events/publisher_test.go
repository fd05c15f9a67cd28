package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/kafka"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/redis"
)

func testEvent(t *testing.T, doc string) types.Event {
	t.Helper()
	var rd types.ResearchDataset
	require.NoError(t, json.Unmarshal([]byte(doc), &rd))
	next := int64(8)
	return types.Event{
		Type: types.EventUpdated,
		Record: &types.DatasetRecord{
			ID:                  7,
			URNIdentifier:       "urn:nbn:fi:att:7",
			PreferredIdentifier: "doi:10.1/x",
			ResearchDataset:     rd,
			NextVersionID:       &next,
		},
		DataCatalog: "urn:nbn:fi:att:data-catalog-ida",
		OccurredAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		title string
	}{
		{"english preferred", `{"title":{"fi":"Otsikko","en":"Title"}}`, "Title"},
		{"first language", `{"title":{"fi":"Otsikko"}}`, "Otsikko"},
		{"plain string", `{"title":"Plain"}`, "Plain"},
		{"no title", `{"description":{"en":"d"}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(testEvent(t, tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.title, msg.Title)
			assert.Equal(t, "updated", msg.EventType)
			assert.Equal(t, "superseded", msg.State)
			assert.Equal(t, "doi:10.1/x", msg.PreferredIdentifier)
		})
	}

	_, err := NewMessage(types.Event{Type: types.EventCreated})
	assert.Error(t, err)
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redis.DefaultConfig()
	cfg.MasterAddr = mr.Addr()
	client, err := redis.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "metax:records")
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(client, "metax:records", logger.NewNop())
	require.NoError(t, p.Publish(ctx, testEvent(t, `{"title":{"en":"Title"}}`)))

	select {
	case m := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
		assert.Equal(t, "urn:nbn:fi:att:7", got.URNIdentifier)
		assert.Equal(t, "Title", got.Title)
		assert.Equal(t, "urn:nbn:fi:att:data-catalog-ida", got.DataCatalog)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type fakeProducer struct {
	events []*kafka.RecordEvent
	err    error
}

func (f *fakeProducer) PublishRecordEvent(_ context.Context, ev *kafka.RecordEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := NewKafkaPublisher(prod)

	require.NoError(t, p.Publish(context.Background(), testEvent(t, `{"title":{"en":"Title"}}`)))
	require.Len(t, prod.events, 1)
	ev := prod.events[0]
	assert.Equal(t, "updated", ev.EventType)
	assert.Equal(t, int64(7), ev.RecordID)
	assert.Equal(t, "doi:10.1/x", ev.Preferred)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "Title", gjson.GetBytes(ev.Data, "research_dataset.title.en").String())
}

func TestMultiPublisher(t *testing.T) {
	ok := &fakeProducer{}
	failing := &fakeProducer{err: errors.New("broker down")}
	m := MultiPublisher{NewKafkaPublisher(failing), NewKafkaPublisher(ok), NopPublisher{}}

	err := m.Publish(context.Background(), testEvent(t, `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.events, 1, "a failing backend does not stop the others")

	assert.NoError(t, MultiPublisher{}.Publish(context.Background(), testEvent(t, `{}`)))
}
