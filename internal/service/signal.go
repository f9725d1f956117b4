package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/usecase"
)

type SignalService struct {
	rdb *redis.Client
}

var _ usecase.EventPublisher = (*SignalService)(nil)

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

// Publish fans a change event out to one pub/sub channel. Delivery is
// best-effort relative to the write that produced the event; clients
// converge through the authoritative refetch.
func (s *SignalService) Publish(ctx context.Context, channel string, event trove.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// PublishToUsers sends the same event to each user's channel.
func (s *SignalService) PublishToUsers(ctx context.Context, userIDs []string, event trove.Event) {
	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		if err := s.Publish(ctx, trove.UserChannel(userID), event); err != nil {
			slog.ErrorContext(
				ctx, "Failed to publish event",
				slog.String("error", err.Error()),
				slog.String("channel", trove.UserChannel(userID)),
				slog.String("module", "signal"),
			)
		}
	}
}

// Realtime bridges a websocket connection to redis pub/sub. The request
// channel swaps the subscription set; events received while subscribed are
// decoded and forwarded. Returns when the context is done or the request
// channel closes.
func (s *SignalService) Realtime(ctx context.Context, request <-chan []string, response chan<- trove.Event) {
	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()

	events := pubsub.Channel()
	var current []string

	for {
		select {
		case <-ctx.Done():
			return
		case channels, ok := <-request:
			if !ok {
				return
			}
			if len(current) > 0 {
				if err := pubsub.Unsubscribe(ctx, current...); err != nil {
					slog.ErrorContext(
						ctx, "Failed to unsubscribe",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
				}
			}
			if len(channels) > 0 {
				if err := pubsub.Subscribe(ctx, channels...); err != nil {
					slog.ErrorContext(
						ctx, "Failed to subscribe",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
					continue
				}
			}
			current = channels
		case msg, ok := <-events:
			if !ok {
				return
			}
			var event trove.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Failed to decode event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			select {
			case response <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
