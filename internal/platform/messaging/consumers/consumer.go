package consumers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/segmentio/kafka-go"

	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
)

// MessageHandler processes one message. A nil return commits the offset.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Done() <-chan struct{}
	Close() error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using a Kafka consumer group
type KafkaConsumer struct {
	reader        KafkaReader
	topic         string
	groupID       string
	retryAttempts uint
	retryDelay    time.Duration
	fetchBackoff  time.Duration
	done          chan struct{}
	logger        *slog.Logger
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := kafka.FirstOffset
	if cfg.StartOffset != 0 {
		startOffset = cfg.StartOffset
	}

	return &KafkaConsumer{
		logger:  logger,
		topic:   cfg.EventTopic,
		groupID: cfg.ConsumerGroup,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.EventTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
		retryAttempts: uint(cfg.HandlerRetryAttempts),
		retryDelay:    cfg.HandlerRetryDelay,
		fetchBackoff:  time.Second,
		done:          make(chan struct{}),
	}
}

// Subscribe starts consuming in the background until ctx is cancelled
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic",
		"topic", c.topic,
		"group_id", c.groupID,
	)

	go func() {
		defer close(c.done)
		c.run(ctx, handler)
	}()

	return nil
}

// Done is closed once the consume loop has returned
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

// partitionBuffer is the number of fetched messages queued per partition
// before fetching blocks
const partitionBuffer = 16

// run fetches messages and hands each partition to its own worker, so
// partitions are processed concurrently while each keeps offset order.
func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	var wg sync.WaitGroup
	partitions := make(map[int]chan kafka.Message)
	defer func() {
		for _, ch := range partitions {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer", "topic", c.topic, "group_id", c.groupID)
				return
			}
			c.logger.Error("Failed to fetch message from Kafka",
				"topic", c.topic,
				"group_id", c.groupID,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.fetchBackoff):
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		ch, ok := partitions[msg.Partition]
		if !ok {
			ch = make(chan kafka.Message, partitionBuffer)
			partitions[msg.Partition] = ch
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.consumePartition(ctx, handler, ch)
			}()
		}

		select {
		case ch <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// consumePartition handles and commits the messages of one partition in order
func (c *KafkaConsumer) consumePartition(ctx context.Context, handler MessageHandler, msgs <-chan kafka.Message) {
	for msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		if !c.handleUntilDone(ctx, handler, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handleUntilDone holds the partition on msg until the handler succeeds.
// Committing a later offset would acknowledge msg too, so it is never skipped.
// Returns false when ctx ends first.
func (c *KafkaConsumer) handleUntilDone(ctx context.Context, handler MessageHandler, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, handler, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("Failed to process message, holding offset",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.fetchBackoff):
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	return retry.Do(
		func() error {
			return handler(ctx, msg.Key, msg.Value)
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Retrying message",
				"offset", msg.Offset,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
