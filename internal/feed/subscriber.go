package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
)

const deliveryBuffer = 32

type Subscriber struct {
	rdb    redis.UniversalClient
	prefix string
	logger logger.Logger
}

func NewSubscriber(rdb redis.UniversalClient, prefix string, log logger.Logger) *Subscriber {
	return &Subscriber{
		rdb:    rdb,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "feed-subscriber"}),
	}
}

// Subscribe listens to the given tables of one application (all tables when
// none are named). The returned channel is closed once ctx ends; nothing is
// delivered after that.
func (s *Subscriber) Subscribe(ctx context.Context, applicationID string, tables ...string) (<-chan Event, error) {
	if len(tables) == 0 {
		tables = AllTables
	}
	channels := make([]string, len(tables))
	for i, t := range tables {
		channels[i] = Channel(s.prefix, applicationID, t)
	}

	ps := s.rdb.Subscribe(ctx, channels...)
	// wait for the subscription confirmation so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", applicationID, err)
	}

	out := make(chan Event, deliveryBuffer)
	go s.deliver(ctx, ps, out)
	return out, nil
}

func (s *Subscriber) deliver(ctx context.Context, ps *redis.PubSub, out chan<- Event) {
	defer close(out)
	defer ps.Close()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("dropping malformed change event", map[string]interface{}{
					"channel": msg.Channel,
					"error":   err.Error(),
				})
				continue
			}
			metrics.FeedEvents.WithLabelValues("in", ev.Table, string(ev.Type)).Inc()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
