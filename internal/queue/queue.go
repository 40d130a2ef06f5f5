// Package queue wraps Redis Streams I/O: the outbound XADD with approximate
// trimming, and the inbound consumer-group read/ack cycle.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outbound publishes processor output onto a capped stream.
type Outbound struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewOutbound(rdb *redis.Client, stream string, maxLen int64) *Outbound {
	return &Outbound{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Publish appends payload (already JSON-encoded) as a single "payload" field,
// trimming the stream to approximately maxLen entries.
func (o *Outbound) Publish(ctx context.Context, payload []byte) error {
	return o.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
}

// Entry is one delivered stream message awaiting processing and ack.
type Entry struct {
	ID      string
	Payload []byte
}

// Inbound reads agentic:queue:incoming through a durable consumer group.
type Inbound struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

func NewInbound(rdb *redis.Client, stream, group, consumer string) *Inbound {
	return &Inbound{rdb: rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup creates the consumer group at the tail of the stream if it
// doesn't already exist, creating the stream itself if necessary.
func (in *Inbound) EnsureGroup(ctx context.Context) error {
	err := in.rdb.XGroupCreateMkStream(ctx, in.stream, in.group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return err
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Read blocks up to block for up to count new entries. Returns nil, nil on
// timeout with no entries.
func (in *Inbound) Read(ctx context.Context, count int64, block time.Duration) ([]Entry, error) {
	res, err := in.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    in.group,
		Consumer: in.consumer,
		Streams:  []string{in.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values["payload"].(string)
			out = append(out, Entry{ID: msg.ID, Payload: []byte(payload)})
		}
	}
	return out, nil
}

// Ack acknowledges a delivered entry so it won't be redelivered.
func (in *Inbound) Ack(ctx context.Context, id string) error {
	return in.rdb.XAck(ctx, in.stream, in.group, id).Err()
}
