package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is an in-process FIFO list transport.
type Memory struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	notify chan struct{}
}

// NewMemory returns an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

// Publish appends tasks in order.
func (m *Memory) Publish(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	payloads, err := encodeTasks(tasks)
	if err != nil {
		return wrap("publish", err)
	}
	return m.push(payloads...)
}

// PushRaw enqueues payloads without encoding them.
func (m *Memory) PushRaw(payloads ...[]byte) error {
	return m.push(payloads...)
}

func (m *Memory) push(payloads ...[]byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return wrap("publish", errors.New("memory transport closed"))
	}
	m.items = append(m.items, payloads...)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest task, waiting up to timeout.
func (m *Memory) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, wrap("next", errors.New("memory transport closed"))
		}
		if len(m.items) > 0 {
			raw := m.items[0]
			m.items[0] = nil
			m.items = m.items[1:]
			remaining := len(m.items)
			m.mu.Unlock()
			if remaining > 0 {
				m.signal()
			}
			return decodeDelivery(raw), nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack is a no-op: popped tasks are already gone.
func (m *Memory) Ack(context.Context, *Delivery) error {
	return nil
}

// Len returns the number of queued tasks.
func (m *Memory) Len(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}

// Describe names the backend.
func (m *Memory) Describe() string {
	return "memory:list"
}

// Close drops queued tasks and wakes blocked readers.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()
	m.signal()
	return nil
}

var _ Transport = (*Memory)(nil)
