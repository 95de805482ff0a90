package consumers

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
)

// fakeReader serves a fixed list of messages, then blocks until ctx is done
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	fetchErrs int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

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

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:        reader,
		topic:         "chat_events",
		groupID:       "test-group",
		retryAttempts: 3,
		retryDelay:    time.Millisecond,
		fetchBackoff:  time.Millisecond,
		done:          make(chan struct{}),
		logger:        slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

func TestNewKafkaConsumer(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := &config.KafkaConfig{
		Brokers:              "localhost:9092",
		EventTopic:           "chat_events",
		ConsumerGroup:        "test-group",
		MinBytes:             1,
		MaxBytes:             10240,
		MaxWait:              time.Second,
		HandlerRetryAttempts: 4,
		HandlerRetryDelay:    time.Second,
	}

	consumer := NewKafkaConsumer(context.Background(), logger, cfg)
	require.NotNil(t, consumer)
	require.NotNil(t, consumer.reader)
	assert.Equal(t, "chat_events", consumer.topic)
	assert.Equal(t, uint(4), consumer.retryAttempts)
	assert.NoError(t, consumer.Close())
}

func TestKafkaConsumer_CommitsHandledMessages(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: 1,
		messages: []kafka.Message{
			{Offset: 1, Key: []byte("a"), Value: []byte("1")},
			{Offset: 2, Key: []byte("b"), Value: []byte("2")},
		},
	}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, key, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(key))
		return nil
	}))

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestKafkaConsumer_RetriesThenSucceeds(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 7}}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	require.NoError(t, consumer.Subscribe(ctx, func(context.Context, []byte, []byte) error {
		attempts++
		if attempts < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()
	assert.Equal(t, 3, attempts)
}

func TestKafkaConsumer_HoldsFailedMessageUntilHandled(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Key: []byte("bad")},
		{Offset: 2, Key: []byte("good")},
	}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	badCalls := 0
	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, key, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, string(key))
		if string(key) == "bad" {
			badCalls++
			// Fails past one full retry cycle of 3 attempts
			if badCalls <= 4 {
				return errors.New("store unavailable")
			}
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, badCalls)
	assert.Equal(t, []string{"bad", "bad", "bad", "bad", "bad", "good"}, order)
}

func TestKafkaConsumer_PartitionsRunConcurrently(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Partition: 0, Offset: 1, Key: []byte("waits")},
		{Partition: 1, Offset: 1, Key: []byte("releases")},
	}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	require.NoError(t, consumer.Subscribe(ctx, func(hctx context.Context, key, _ []byte) error {
		if string(key) == "releases" {
			close(release)
			return nil
		}
		select {
		case <-release:
			return nil
		case <-hctx.Done():
			return hctx.Err()
		}
	}))

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()
}

func TestKafkaConsumer_HeldPartitionDoesNotBlockOthers(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Partition: 0, Offset: 1, Key: []byte("bad")},
		{Partition: 1, Offset: 5, Key: []byte("good")},
		{Partition: 1, Offset: 6, Key: []byte("good")},
	}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, key, _ []byte) error {
		if string(key) == "bad" {
			return errors.New("store unavailable")
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-consumer.Done()
	assert.Equal(t, []int64{5, 6}, reader.Committed())
}

func TestKafkaConsumer_StopsHoldingOnCancel(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 1, Key: []byte("bad")}}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())

	calls := make(chan struct{}, 100)
	require.NoError(t, consumer.Subscribe(ctx, func(context.Context, []byte, []byte) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return errors.New("always failing")
	}))

	<-calls
	cancel()

	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
	assert.Empty(t, reader.Committed())
}

func TestKafkaConsumer_Close(t *testing.T) {
	t.Run("CloseWithNilReader", func(t *testing.T) {
		consumer := &KafkaConsumer{
			reader: nil,
			logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		}
		require.NoError(t, consumer.Close())
	})
}
