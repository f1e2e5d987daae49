package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
)

type Publisher struct {
	rdb    redis.UniversalClient
	prefix string
	logger logger.Logger
}

func NewPublisher(rdb redis.UniversalClient, prefix string, log logger.Logger) *Publisher {
	return &Publisher{
		rdb:    rdb,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "feed-publisher"}),
	}
}

// Publish sends ev to the channel of its application and table. Zero
// receivers is not an error.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	channel := Channel(p.prefix, ev.ApplicationID, ev.Table)
	receivers, err := p.rdb.Publish(ctx, channel, string(payload)).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}

	metrics.FeedEvents.WithLabelValues("out", ev.Table, string(ev.Type)).Inc()
	p.logger.Debug("change event published", map[string]interface{}{
		"channel":   channel,
		"type":      ev.Type,
		"recordId":  ev.RecordID,
		"receivers": receivers,
	})
	return nil
}

// PublishRecord builds and publishes an event in one call.
func (p *Publisher) PublishRecord(ctx context.Context, table string, typ EventType, applicationID, recordID string, record interface{}) error {
	ev, err := NewEvent(table, typ, applicationID, recordID, record)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ev)
}
