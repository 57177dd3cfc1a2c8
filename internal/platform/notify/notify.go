// Package notify carries schedule-change notices between processes. A
// writer such as the seed command publishes the doctors whose appointments
// changed; every server instance listening on the channel refreshes its
// live day views and drops its response cache.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis pub/sub channel for schedule changes.
const DefaultChannel = "dayview:schedule-changed"

// ScheduleChanged names the doctors whose schedules changed. An empty
// DoctorIDs means every doctor.
type ScheduleChanged struct {
	DoctorIDs []string  `json:"doctor_ids,omitempty"`
	At        time.Time `json:"at"`
}

// All reports whether the notice covers every doctor.
func (s ScheduleChanged) All() bool { return len(s.DoctorIDs) == 0 }

// Publisher announces schedule changes.
type Publisher interface {
	Publish(ctx context.Context, doctorIDs ...string) error
}

// RedisNotifier publishes and receives ScheduleChanged notices over Redis
// pub/sub.
type RedisNotifier struct {
	rdb     redis.UniversalClient
	channel string
	log     zerolog.Logger
}

func NewRedisNotifier(rdb redis.UniversalClient, channel string, logger zerolog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel, log: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, doctorIDs ...string) error {
	payload, err := Encode(ScheduleChanged{DoctorIDs: doctorIDs, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish schedule change: %w", err)
	}
	return nil
}

// Listen delivers notices to fn until ctx is cancelled. Undecodable
// messages are logged and skipped.
func (n *RedisNotifier) Listen(ctx context.Context, fn func(ScheduleChanged)) error {
	sub := n.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed so early publishes are not lost
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	n.log.Info().Str("channel", n.channel).Msg("listening for schedule changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := Decode(msg.Payload)
			if err != nil {
				n.log.Warn().Err(err).Str("channel", n.channel).Msg("skipping malformed schedule change")
				continue
			}
			fn(ev)
		}
	}
}

func Encode(ev ScheduleChanged) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode schedule change: %w", err)
	}
	return string(raw), nil
}

func Decode(payload string) (ScheduleChanged, error) {
	var ev ScheduleChanged
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ScheduleChanged{}, fmt.Errorf("decode schedule change: %w", err)
	}
	return ev, nil
}
