package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const streamPayloadField = "task"

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, wrap("ping redis", err)
	}
	return client, nil
}

// blockTimeout keeps a zero timeout from blocking forever.
func blockTimeout(timeout time.Duration) time.Duration {
	if timeout < time.Millisecond {
		return time.Millisecond
	}
	return timeout
}

// RedisList is a list-mode transport on a Redis list: LPUSH to publish,
// BRPOP to receive.
type RedisList struct {
	client *redis.Client
	key    string
}

// OpenRedisList connects to url and uses key as the queue.
func OpenRedisList(ctx context.Context, url, key string) (*RedisList, error) {
	client, err := newRedisClient(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewRedisList(client, key), nil
}

// NewRedisList wraps an existing client.
func NewRedisList(client *redis.Client, key string) *RedisList {
	return &RedisList{client: client, key: key}
}

// Publish pushes every task in one LPUSH.
func (r *RedisList) Publish(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	payloads, err := encodeTasks(tasks)
	if err != nil {
		return wrap("publish", err)
	}
	values := make([]any, len(payloads))
	for i, payload := range payloads {
		values[i] = payload
	}
	return wrap("lpush", r.client.LPush(ctx, r.key, values...).Err())
}

// Next pops the oldest task.
func (r *RedisList) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	res, err := r.client.BRPop(ctx, blockTimeout(timeout), r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrap("brpop", err)
	}
	if len(res) != 2 {
		return nil, wrap("brpop", fmt.Errorf("unexpected reply of %d elements", len(res)))
	}
	return decodeDelivery([]byte(res[1])), nil
}

// Ack is a no-op for lists.
func (r *RedisList) Ack(context.Context, *Delivery) error {
	return nil
}

// Len returns LLEN of the queue.
func (r *RedisList) Len(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	return n, wrap("llen", err)
}

// Describe names the backend and key.
func (r *RedisList) Describe() string {
	return "redis:list:" + r.key
}

// Close closes the client.
func (r *RedisList) Close() error {
	return r.client.Close()
}

// RedisStreamOptions configures a consumer-group stream transport.
type RedisStreamOptions struct {
	URL      string
	Stream   string
	Group    string
	Consumer string
	// ClaimIdle is how long a pending entry may sit unacknowledged before
	// another consumer reclaims it. Zero disables reclaiming.
	ClaimIdle time.Duration
}

// RedisStream is a stream-mode transport on a Redis stream and consumer group.
type RedisStream struct {
	client *redis.Client
	opts   RedisStreamOptions
}

// OpenRedisStream connects and ensures the consumer group exists.
func OpenRedisStream(ctx context.Context, opts RedisStreamOptions) (*RedisStream, error) {
	client, err := newRedisClient(ctx, opts.URL)
	if err != nil {
		return nil, err
	}
	s, err := NewRedisStream(ctx, client, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStream wraps an existing client and creates the group if needed.
func NewRedisStream(ctx context.Context, client *redis.Client, opts RedisStreamOptions) (*RedisStream, error) {
	if strings.TrimSpace(opts.Consumer) == "" {
		return nil, errors.New("stream consumer name is required")
	}
	err := client.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, wrap("xgroup create", err)
	}
	return &RedisStream{client: client, opts: opts}, nil
}

// Publish appends every task with one pipelined XADD per task.
func (r *RedisStream) Publish(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	payloads, err := encodeTasks(tasks)
	if err != nil {
		return wrap("publish", err)
	}
	pipe := r.client.Pipeline()
	for _, payload := range payloads {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.opts.Stream,
			Values: map[string]any{streamPayloadField: payload},
		})
	}
	_, err = pipe.Exec(ctx)
	return wrap("xadd", err)
}

// Next first reclaims one entry abandoned by another consumer, then reads a
// new entry for the group.
func (r *RedisStream) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if r.opts.ClaimIdle > 0 {
		msgs, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.opts.Stream,
			Group:    r.opts.Group,
			Consumer: r.opts.Consumer,
			MinIdle:  r.opts.ClaimIdle,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, wrap("xautoclaim", err)
		}
		if len(msgs) > 0 {
			d := r.delivery(msgs[0])
			d.Redelivered = true
			return d, nil
		}
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.opts.Group,
		Consumer: r.opts.Consumer,
		Streams:  []string{r.opts.Stream, ">"},
		Count:    1,
		Block:    blockTimeout(timeout),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrap("xreadgroup", err)
	}
	for _, stream := range streams {
		if len(stream.Messages) > 0 {
			return r.delivery(stream.Messages[0]), nil
		}
	}
	return nil, nil
}

func (r *RedisStream) delivery(msg redis.XMessage) *Delivery {
	var raw []byte
	switch v := msg.Values[streamPayloadField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	}
	d := decodeDelivery(raw)
	id := msg.ID
	d.ack = func(ctx context.Context) error {
		if err := r.client.XAck(ctx, r.opts.Stream, r.opts.Group, id).Err(); err != nil {
			return wrap("xack", err)
		}
		return wrap("xdel", r.client.XDel(ctx, r.opts.Stream, id).Err())
	}
	return d
}

// Ack acknowledges the entry for the group and deletes it from the stream.
func (r *RedisStream) Ack(ctx context.Context, d *Delivery) error {
	return ackDelivery(ctx, d)
}

// Len returns XLEN of the stream. Acked entries are deleted, so this is
// the undelivered backlog plus entries still pending for the group.
func (r *RedisStream) Len(ctx context.Context) (int64, error) {
	n, err := r.client.XLen(ctx, r.opts.Stream).Result()
	return n, wrap("xlen", err)
}

// Describe names the backend, stream and group.
func (r *RedisStream) Describe() string {
	return fmt.Sprintf("redis:stream:%s/%s", r.opts.Stream, r.opts.Group)
}

// Close closes the client.
func (r *RedisStream) Close() error {
	return r.client.Close()
}

var (
	_ Transport = (*RedisList)(nil)
	_ Transport = (*RedisStream)(nil)
)
