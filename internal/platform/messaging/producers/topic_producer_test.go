package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// MockKafkaWriter mocks KafkaWriter interface
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestTopicProducer_Publish(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	topic := "chat_events"
	ctx := context.Background()

	t.Run("SuccessfulPublish", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &TopicProducer{
			logger: logger,
			writer: mockWriter,
			topic:  topic,
		}

		key := "-100123"
		value := &invoice.Event{
			Text:       "invoice 1\ntotal: $1",
			ChatID:     -100123,
			OccurredAt: time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC),
			MessageID:  "55",
		}
		expectedJSONValue, _ := json.Marshal(value)

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			return string(msg.Key) == key && string(msg.Value) == string(expectedJSONValue)
		})).Return(nil).Once()

		err := producer.Publish(ctx, key, value)
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("PublishReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &TopicProducer{
			logger: logger,
			writer: mockWriter,
			topic:  topic,
		}

		writerError := errors.New("kafka write error")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.Publish(ctx, "key", map[string]string{"data": "test-data"})
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("PublishReturnsErrorOnMarshalFailure", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &TopicProducer{
			logger: logger,
			writer: mockWriter,
			topic:  topic,
		}

		err := producer.Publish(ctx, "key", make(chan int))
		assert.ErrorContains(t, err, "failed to marshal message value")
		mockWriter.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
	})
}

func TestTopicProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	mockWriter := new(MockKafkaWriter)
	producer := &TopicProducer{logger: logger, writer: mockWriter, topic: "invoice_totals"}
	closeError := errors.New("close error")
	mockWriter.On("Close").Return(closeError).Once()

	err := producer.Close()
	assert.ErrorIs(t, err, closeError)
	mockWriter.AssertExpectations(t)
}

func TestNewTopicProducer_RequiresTopic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_, err := NewTopicProducer(context.Background(), logger, &config.KafkaConfig{Brokers: "localhost:9092"}, "")
	assert.EqualError(t, err, "kafka topic is not configured")
}
