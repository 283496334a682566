package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/store"
)

var (
	// ErrTransport wraps every queue backend failure.
	ErrTransport = errors.New("transport error")
	// ErrUnsupportedMode is returned for backend and mode combinations that do not exist.
	ErrUnsupportedMode = errors.New("unsupported transport mode")
)

// Task is the wire descriptor of one work item.
type Task struct {
	ID              int64  `json:"id"`
	BusinessKey     string `json:"business_key"`
	ResourceLocator string `json:"resource_locator"`
	Page            int    `json:"page,omitempty"`
}

// Valid reports whether the task names an item and a resource.
func (t Task) Valid() bool {
	return strings.TrimSpace(t.BusinessKey) != "" && strings.TrimSpace(t.ResourceLocator) != ""
}

// Delivery is a received task plus whatever the backend needs to acknowledge it.
type Delivery struct {
	Task Task
	// Raw is the undecoded payload; Task is zero when it was not valid JSON.
	Raw []byte
	// Redelivered is set when the task was reclaimed from another consumer.
	Redelivered bool

	ack func(ctx context.Context) error
}

// Transport moves tasks between the producer and workers.
type Transport interface {
	// Publish enqueues every task or returns an error.
	Publish(ctx context.Context, tasks []Task) error
	// Next blocks up to timeout for one delivery. It returns nil, nil on timeout.
	Next(ctx context.Context, timeout time.Duration) (*Delivery, error)
	// Ack removes a delivery from the pending set. It is a no-op in list mode.
	Ack(ctx context.Context, d *Delivery) error
	// Len reports the number of tasks waiting in the queue.
	Len(ctx context.Context) (int64, error)
	// Describe names the backend and mode for diagnostics.
	Describe() string
	Close() error
}

// OpenWithStore is Open for callers that hold the work store, which the store
// backend polls in place of a broker.
func OpenWithStore(ctx context.Context, cfg *config.Config, consumer string, s store.Store) (Transport, error) {
	if cfg == nil || cfg.Transport.Backend != config.BackendStore {
		return Open(ctx, cfg, consumer)
	}
	if s == nil {
		return nil, ErrStoreRequired
	}
	return NewStorePoll(s, cfg.StorePollInterval()), nil
}

// Open connects the transport selected by cfg. consumer identifies this
// process to stream-mode consumer groups.
func Open(ctx context.Context, cfg *config.Config, consumer string) (Transport, error) {
	if cfg == nil {
		return nil, errors.New("transport: config is nil")
	}
	tc := cfg.Transport
	claimIdle := time.Duration(tc.ClaimIdleSeconds) * time.Second
	switch tc.Backend {
	case config.BackendMemory:
		if tc.Mode != config.ModeList {
			return nil, fmt.Errorf("%w: memory backend supports list mode only", ErrUnsupportedMode)
		}
		return NewMemory(), nil
	case config.BackendStore:
		return nil, ErrStoreRequired
	case config.BackendRedis:
		switch tc.Mode {
		case config.ModeList:
			return OpenRedisList(ctx, tc.RedisURL, tc.QueueName)
		case config.ModeStream:
			return OpenRedisStream(ctx, RedisStreamOptions{
				URL:       tc.RedisURL,
				Stream:    tc.StreamName,
				Group:     tc.Group,
				Consumer:  consumer,
				ClaimIdle: claimIdle,
			})
		}
	case config.BackendNATS:
		opts := JetStreamOptions{
			URL:       tc.NATSURL,
			Durable:   tc.Group,
			ClaimIdle: claimIdle,
		}
		switch tc.Mode {
		case config.ModeList:
			opts.Stream = tc.QueueName
			return OpenJetStream(ctx, opts)
		case config.ModeStream:
			opts.Stream = tc.StreamName
			opts.AckAfterProcessing = true
			return OpenJetStream(ctx, opts)
		}
	default:
		return nil, fmt.Errorf("transport: unsupported backend %q", tc.Backend)
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedMode, tc.Backend, tc.Mode)
}

func encodeTasks(tasks []Task) ([][]byte, error) {
	payloads := make([][]byte, 0, len(tasks))
	for _, task := range tasks {
		data, err := json.Marshal(task)
		if err != nil {
			return nil, fmt.Errorf("encode task %s: %w", task.BusinessKey, err)
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}

// decodeDelivery never fails; undecodable payloads produce an invalid Task
// that the worker acknowledges and drops.
func decodeDelivery(raw []byte) *Delivery {
	d := &Delivery{Raw: raw}
	if err := json.Unmarshal(raw, &d.Task); err != nil {
		d.Task = Task{}
	}
	return d
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func ackDelivery(ctx context.Context, d *Delivery) error {
	if d == nil || d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
