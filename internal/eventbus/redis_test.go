package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisBusFromClient(client)
}

func TestRedisBus_PublishSubscribeDeliversAndAcks(t *testing.T) {
	mr, bus := setupMiniRedis(t)
	defer mr.Close()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sub, err := bus.Subscribe(ctx, "transcoder.request")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := bus.Publish(ctx, "transcoder.request", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg.Payload) != "hello" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
		if err := sub.Ack(ctx, msg.ID); err != nil {
			t.Fatalf("ack: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestRedisBus_SubjectsAreIsolated(t *testing.T) {
	mr, bus := setupMiniRedis(t)
	defer mr.Close()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	subA, err := bus.Subscribe(ctx, "events.org1")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer subA.Close()
	subB, err := bus.Subscribe(ctx, "events.org2")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer subB.Close()

	if err := bus.Publish(ctx, "events.org1", []byte("for-a")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-subA.Messages():
		if string(msg.Payload) != "for-a" {
			t.Fatalf("unexpected payload on subject a: %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message on subject a")
	}

	select {
	case msg := <-subB.Messages():
		t.Fatalf("subject b should not receive subject a's message, got %q", msg.Payload)
	case <-time.After(300 * time.Millisecond):
	}
}
