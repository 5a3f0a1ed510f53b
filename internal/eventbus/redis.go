package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/logger"
)

// streamPrefix namespaces subjects as Redis Stream keys so the event bus
// keyspace never collides with the Metadata Store's plain keys.
const streamPrefix = "eventbus.stream."

// defaultGroup is the consumer group used when a caller subscribes without
// needing point-to-point fan-out semantics of its own (most subjects here
// are naturally single-consumer-group: one set of transcoder workers, one
// ingest connection draining its own disconnect subject).
const defaultGroup = "bitriver-workers"

// RedisBus implements Bus on Redis Streams: XADD to publish, a consumer
// group per subject with XREADGROUP/XACK for at-least-once delivery,
// grounded on the XADD/XGROUP/XREADGROUP/XACK flow in
// ProhibitedTV-BitRiver-Live/internal/chat/redis_queue.go but reimplemented
// against the real go-redis/v9 client instead of a hand-rolled RESP client.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisBus dials addr and verifies connectivity with a PING.
func NewRedisBus(ctx context.Context, addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, coreerrors.NewInfraError("eventbus.dial", fmt.Errorf("redis connection failed: %w", err), false)
	}
	return &RedisBus{client: client, log: logger.Logger().With("component", "eventbus.redis")}, nil
}

// NewRedisBusFromClient wraps an already-constructed client; used by tests
// to inject a miniredis-backed client.
func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, log: logger.Logger().With("component", "eventbus.redis")}
}

func streamKey(subject string) string { return streamPrefix + subject }

func (b *RedisBus) Publish(ctx context.Context, subject string, payload []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(subject),
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return coreerrors.NewInfraError("eventbus.publish", err, true)
	}
	return nil
}

// Subscribe creates (if needed) a consumer group reading the tail of the
// subject's stream and returns a Subscription that polls it in a
// background goroutine.
func (b *RedisBus) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	key := streamKey(subject)
	err := b.client.XGroupCreateMkStream(ctx, key, defaultGroup, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, coreerrors.NewInfraError("eventbus.subscribe", err, true)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		bus:      b,
		key:      key,
		group:    defaultGroup,
		consumer: "consumer-" + uuid.NewString(),
		cancel:   cancel,
		ch:       make(chan Message, 64),
	}
	go sub.run(subCtx)
	return sub, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

// Close releases the underlying Redis client.
func (b *RedisBus) Close() error { return b.client.Close() }

type redisSubscription struct {
	bus      *RedisBus
	key      string
	group    string
	consumer string
	cancel   context.CancelFunc
	ch       chan Message
}

func (s *redisSubscription) Messages() <-chan Message { return s.ch }

func (s *redisSubscription) Ack(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.bus.client.XAck(ctx, s.key, s.group, id).Err(); err != nil {
		return coreerrors.NewInfraError("eventbus.ack", err, true)
	}
	return nil
}

func (s *redisSubscription) Close() error {
	s.cancel()
	return nil
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.ch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, err := s.bus.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.key, ">"},
			Count:    32,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			s.bus.log.Warn("eventbus read failed", "subject", s.key, "err", err)
			time.Sleep(200 * time.Millisecond)
			continue
		}
		for _, stream := range res {
			for _, entry := range stream.Messages {
				payload, _ := entry.Values["payload"].(string)
				msg := Message{ID: entry.ID, Subject: strings.TrimPrefix(s.key, streamPrefix), Payload: []byte(payload)}
				select {
				case s.ch <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

var _ Bus = (*RedisBus)(nil)
