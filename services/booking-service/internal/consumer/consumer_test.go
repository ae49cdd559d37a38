package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	drained   context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	r.drained()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func testConsumer(reader messageReader, apply func(context.Context, kafka.Message) error) *Consumer {
	return &Consumer{
		reader: reader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		apply:  apply,
		newBackOff: func() *backoff.ExponentialBackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Millisecond
			bo.MaxInterval = 5 * time.Millisecond
			bo.Reset()
			return bo
		},
	}
}

func TestFailedEventIsRetriedBeforeLaterOffsetsCommit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{{Topic: "directory.pet.upserted.v1", Offset: 1}, {Topic: "directory.pet.upserted.v1", Offset: 2}},
		drained: cancel,
	}
	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
		applied  []int64
	)
	c := testConsumer(reader, func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Offset]++
		if msg.Offset == 1 && attempts[1] < 3 {
			return errors.New("connection reset by peer")
		}
		applied = append(applied, msg.Offset)
		return nil
	})

	c.Run(ctx)

	if attempts[1] != 3 {
		t.Fatalf("offset 1 attempts = %d, want 3", attempts[1])
	}
	if !slices.Equal(applied, []int64{1, 2}) {
		t.Fatalf("applied = %v, want [1 2]", applied)
	}
	if !slices.Equal(reader.committed, []int64{1, 2}) {
		t.Fatalf("committed = %v, want [1 2]", reader.committed)
	}
}

func TestShutdownDuringRetryLeavesEventUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{{Offset: 7}, {Offset: 8}},
		drained: cancel,
	}
	calls := 0
	c := testConsumer(reader, func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("db unavailable")
	})

	c.Run(ctx)

	if len(reader.committed) != 0 {
		t.Fatalf("committed = %v, want none", reader.committed)
	}
	if len(reader.pending) != 1 {
		t.Fatalf("offset 8 must not be fetched while 7 is failing; pending = %v", reader.pending)
	}
}
