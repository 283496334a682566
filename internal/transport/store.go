package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tenderq/internal/store"
)

// ErrStoreRequired is returned when the store backend is opened without a
// work store to poll.
var ErrStoreRequired = errors.New("transport backend store needs an open work store")

const defaultStorePoll = 500 * time.Millisecond

// StorePoll is a list-mode transport without a broker. Next selects one new
// or retryable row straight from the work store and marks it queued; the
// worker then claims it like any other delivery.
type StorePoll struct {
	store    store.Store
	interval time.Duration
}

// NewStorePoll polls s every interval while idle.
func NewStorePoll(s store.Store, interval time.Duration) *StorePoll {
	if interval <= 0 {
		interval = defaultStorePoll
	}
	return &StorePoll{store: s, interval: interval}
}

// Publish hands rows a producer marked queued back to new so that workers
// select them here.
func (p *StorePoll) Publish(ctx context.Context, tasks []Task) error {
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		if task.ID > 0 {
			ids = append(ids, task.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := p.store.RevertToNew(ctx, ids)
	return wrap("publish", err)
}

// Next selects the oldest claimable row, polling until timeout.
func (p *StorePoll) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	deadline := time.Now().Add(timeout)
	for {
		items, err := p.store.SelectAndMarkQueued(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, wrap("select", err)
		}
		if len(items) > 0 {
			return itemDelivery(items[0]), nil
		}

		wait := min(p.interval, time.Until(deadline))
		if wait <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func itemDelivery(item *store.Item) *Delivery {
	task := Task{
		ID:              item.ID,
		BusinessKey:     item.BusinessKey,
		ResourceLocator: item.ResourceLocator,
		Page:            item.Page,
	}
	raw, _ := json.Marshal(task)
	return &Delivery{Task: task, Raw: raw}
}

// Ack is a no-op; the claim records progress.
func (p *StorePoll) Ack(context.Context, *Delivery) error {
	return nil
}

// Len counts new and retryable failed rows.
func (p *StorePoll) Len(ctx context.Context) (int64, error) {
	items, err := p.store.List(ctx, store.StatusNew, store.StatusFailed)
	if err != nil {
		return 0, wrap("count", err)
	}
	var n int64
	for _, item := range items {
		if item.Retryable() {
			n++
		}
	}
	return n, nil
}

// Describe names the backend.
func (p *StorePoll) Describe() string {
	return "store:list"
}

// Close leaves the store open; its owner closes it.
func (p *StorePoll) Close() error {
	return nil
}

var _ Transport = (*StorePoll)(nil)
