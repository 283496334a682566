package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const defaultAckWait = 5 * time.Minute

// JetStreamOptions configures a NATS JetStream transport.
type JetStreamOptions struct {
	URL string
	// Stream is both the JetStream stream name and its subject.
	Stream string
	// Durable is the pull consumer shared by every worker.
	Durable string
	// ClaimIdle is how long a delivered message may go unacknowledged before
	// JetStream redelivers it. Only meaningful with AckAfterProcessing.
	ClaimIdle time.Duration
	// AckAfterProcessing selects stream mode: messages stay pending until the
	// worker calls Ack. Otherwise they are acknowledged as soon as they are
	// received, which gives list semantics.
	AckAfterProcessing bool
}

// JetStream is a transport on a work-queue JetStream stream. Acknowledged
// messages are removed from the stream.
type JetStream struct {
	nc       *nats.Conn
	stream   jetstream.Stream
	consumer jetstream.Consumer
	js       jetstream.JetStream
	opts     JetStreamOptions
}

// OpenJetStream connects to NATS and ensures the stream and durable consumer exist.
func OpenJetStream(ctx context.Context, opts JetStreamOptions) (*JetStream, error) {
	nc, err := nats.Connect(opts.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, wrap("nats connect", err)
	}
	t, err := NewJetStream(ctx, nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return t, nil
}

// NewJetStream builds the transport on an existing connection.
func NewJetStream(ctx context.Context, nc *nats.Conn, opts JetStreamOptions) (*JetStream, error) {
	if strings.TrimSpace(opts.Stream) == "" {
		return nil, errors.New("jetstream stream name is required")
	}
	if strings.TrimSpace(opts.Durable) == "" {
		return nil, errors.New("jetstream durable name is required")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, wrap("jetstream", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      opts.Stream,
		Subjects:  []string{opts.Stream},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, wrap("create stream", err)
	}

	ackWait := opts.ClaimIdle
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		FilterSubject: opts.Stream,
	})
	if err != nil {
		return nil, wrap("create consumer", err)
	}
	return &JetStream{nc: nc, js: js, stream: stream, consumer: consumer, opts: opts}, nil
}

// Publish sends every task and waits for the stream to store each one.
func (j *JetStream) Publish(ctx context.Context, tasks []Task) error {
	payloads, err := encodeTasks(tasks)
	if err != nil {
		return wrap("publish", err)
	}
	for _, payload := range payloads {
		if _, err := j.js.Publish(ctx, j.opts.Stream, payload); err != nil {
			return wrap("publish", err)
		}
	}
	return nil
}

// Next fetches one message from the durable consumer.
func (j *JetStream) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := j.consumer.Fetch(1, jetstream.FetchMaxWait(blockTimeout(timeout)))
	if err != nil {
		return nil, wrap("fetch", err)
	}
	var msg jetstream.Msg
	for m := range batch.Messages() {
		if msg == nil {
			msg = m
		}
	}
	if err := batch.Error(); err != nil && msg == nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
			return nil, nil
		}
		return nil, wrap("fetch", err)
	}
	if msg == nil {
		return nil, nil
	}

	d := decodeDelivery(msg.Data())
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 1 {
		d.Redelivered = true
	}
	if !j.opts.AckAfterProcessing {
		if err := msg.DoubleAck(ctx); err != nil {
			return nil, wrap("ack", err)
		}
		return d, nil
	}
	d.ack = func(ctx context.Context) error {
		return wrap("ack", msg.DoubleAck(ctx))
	}
	return d, nil
}

// Ack acknowledges a stream-mode delivery.
func (j *JetStream) Ack(ctx context.Context, d *Delivery) error {
	return ackDelivery(ctx, d)
}

// Len returns the number of messages held by the stream.
func (j *JetStream) Len(ctx context.Context) (int64, error) {
	info, err := j.stream.Info(ctx)
	if err != nil {
		return 0, wrap("stream info", err)
	}
	return int64(info.State.Msgs), nil
}

// Describe names the backend, stream and mode.
func (j *JetStream) Describe() string {
	mode := "list"
	if j.opts.AckAfterProcessing {
		mode = "stream"
	}
	return fmt.Sprintf("nats:%s:%s/%s", mode, j.opts.Stream, j.opts.Durable)
}

// Close drains the connection.
func (j *JetStream) Close() error {
	if j.nc == nil {
		return nil
	}
	return j.nc.Drain()
}

var _ Transport = (*JetStream)(nil)
