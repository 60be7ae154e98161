package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ChannelPrefix prefixes the per-course Redis pub/sub channel: attendance:<courseID>.
const ChannelPrefix = "attendance:"

// relayMessage wraps an event with the publishing instance so it can ignore its own echoes.
type relayMessage struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between server instances. Publish sends to Redis; Run forwards events published by
// other instances into the local sink (normally the Hub).
type RedisRelay struct {
	client *redis.Client
	local  Notifier
	origin string
}

// NewRedisRelay returns a relay over client delivering remote events into local.
func NewRedisRelay(client *redis.Client, local Notifier) *RedisRelay {
	return &RedisRelay{client: client, local: local, origin: uuid.NewString()}
}

// Channel returns the pub/sub channel for courseID.
func Channel(courseID string) string {
	return ChannelPrefix + courseID
}

// Publish sends ev to the course channel.
func (r *RedisRelay) Publish(ctx context.Context, courseID string, ev Event) error {
	b, err := json.Marshal(relayMessage{Origin: r.origin, Event: ev})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(courseID), b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run pattern-subscribes to every course channel and forwards remote events until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			r.deliver(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// deliver decodes one relayed payload and hands it to the local sink unless this instance sent it.
func (r *RedisRelay) deliver(ctx context.Context, channel string, payload []byte) bool {
	courseID := strings.TrimPrefix(channel, ChannelPrefix)
	var m relayMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("notify: dropping malformed relay message")
		return false
	}
	if m.Origin == r.origin || courseID == "" || m.Event.CourseID != courseID {
		return false
	}
	if err := r.local.Publish(ctx, courseID, m.Event); err != nil {
		log.Warn().Err(err).Str("course_id", courseID).Msg("notify: local delivery failed")
		return false
	}
	return true
}

// Ping checks the Redis connection. Used by the health checker.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
