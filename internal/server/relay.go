package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultRelayChannel = "reveal:rooms"

// Relay carries room events between server instances.
type Relay interface {
	Publish(ctx context.Context, ev Event) error
	Run(ctx context.Context, deliver func(Event) error) error
}

type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay publishes every local event on one Redis pub/sub channel and
// delivers events from other instances locally. Events carry the
// publishing instance id so an instance ignores its own echoes.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceId string
	log        zerolog.Logger
}

func NewRedisRelay(client *redis.Client, channel, instanceId string, logger zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceId: instanceId,
		log:        logger.With().Str("component", "relay").Str("instance_id", instanceId).Logger(),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := r.encode(ev)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

func (r *RedisRelay) encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(relayEnvelope{Origin: r.instanceId, Event: ev})
	if err != nil {
		return nil, fmt.Errorf("marshal relay event: %w", err)
	}
	return data, nil
}

// Run blocks until ctx is cancelled, delivering remote events.
func (r *RedisRelay) Run(ctx context.Context, deliver func(Event) error) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handlePayload(msg.Payload, deliver)
		}
	}
}

func (r *RedisRelay) handlePayload(payload string, deliver func(Event) error) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn().Err(err).Msg("dropping malformed relay message")
		return
	}

	if env.Origin == r.instanceId || env.Event.RoomId == "" {
		return
	}

	if err := deliver(env.Event); err != nil {
		r.log.Warn().Err(err).Str("room_id", env.Event.RoomId).Msg("failed to deliver relayed event")
	}
}
