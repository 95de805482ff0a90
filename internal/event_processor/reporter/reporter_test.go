package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
)

// MockQuerier for testing
type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) Query(ctx context.Context, req aggregator.Request) (*aggregator.Report, error) {
	args := m.Called(ctx, req)
	report, _ := args.Get(0).(*aggregator.Report)
	return report, args.Error(1)
}

// MockPublisher for testing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig() *config.ReporterConfig {
	return &config.ReporterConfig{
		Enabled:          true,
		Interval:         time.Hour,
		Window:           "today",
		GroupBy:          "chat_id,payment_method",
		MaxRetryAttempts: 3,
		RetryDelay:       time.Millisecond,
	}
}

func newTestReporter(t *testing.T, q Querier, p *MockPublisher) *Reporter {
	t.Helper()
	r, err := NewReporter(testConfig(), q, p, slog.Default())
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	r.newID = func() string { return "report-1" }
	return r
}

func sampleReport() *aggregator.Report {
	day := civil.Date{Year: 2024, Month: time.March, Day: 10}
	return &aggregator.Report{
		From:    day,
		To:      day,
		GroupBy: []aggregator.Dimension{aggregator.DimensionChatID, aggregator.DimensionPaymentMethod},
		Total:   aggregator.Totals{USDCents: 2500, Riel: 102000, Count: 2},
		Groups: map[aggregator.GroupKey]aggregator.Totals{
			{ChatID: -2, PaymentMethod: "ABA"}:     {USDCents: 1250, Riel: 51000, Count: 1},
			{ChatID: -1, PaymentMethod: "Unknown"}: {USDCents: 1250, Riel: 51000, Count: 1},
		},
	}
}

func TestNewReporter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.ReporterConfig)
		errMsg string
	}{
		{"bad window", func(cfg *config.ReporterConfig) { cfg.Window = "fortnight" }, "invalid reporter window"},
		{"bad dimension", func(cfg *config.ReporterConfig) { cfg.GroupBy = "chat_id,currency" }, "invalid reporter group by"},
		{"zero interval", func(cfg *config.ReporterConfig) { cfg.Interval = 0 }, "reporter interval must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewReporter(cfg, &MockQuerier{}, &MockPublisher{}, slog.Default())
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestReporter_PublishReport(t *testing.T) {
	q := &MockQuerier{}
	p := &MockPublisher{}
	r := newTestReporter(t, q, p)

	q.On("Query", mock.Anything, aggregator.Request{
		Window:  aggregator.Today(),
		GroupBy: []aggregator.Dimension{aggregator.DimensionChatID, aggregator.DimensionPaymentMethod},
	}).Return(sampleReport(), nil).Once()

	p.On("Publish", mock.Anything, "today", mock.MatchedBy(func(msg *Message) bool {
		return msg.ReportID == "report-1" &&
			msg.From == "2024-03-10" &&
			msg.To == "2024-03-10" &&
			msg.Total.USDCents == 2500 &&
			len(msg.Groups) == 2 &&
			msg.Groups[0].ChatID == -2 &&
			msg.Groups[1].PaymentMethod == "Unknown"
	})).Return(nil).Once()

	require.NoError(t, r.PublishReport(context.Background()))
	q.AssertExpectations(t)
	p.AssertExpectations(t)
}

func TestReporter_PublishReportRetries(t *testing.T) {
	q := &MockQuerier{}
	p := &MockPublisher{}
	r := newTestReporter(t, q, p)

	q.On("Query", mock.Anything, mock.Anything).Return(sampleReport(), nil)
	p.On("Publish", mock.Anything, "today", mock.Anything).Return(errors.New("broker unavailable")).Twice()
	p.On("Publish", mock.Anything, "today", mock.Anything).Return(nil).Once()

	require.NoError(t, r.PublishReport(context.Background()))
	p.AssertNumberOfCalls(t, "Publish", 3)
	q.AssertNumberOfCalls(t, "Query", 1)
}

func TestReporter_PublishReportGivesUp(t *testing.T) {
	q := &MockQuerier{}
	p := &MockPublisher{}
	r := newTestReporter(t, q, p)

	publishErr := errors.New("broker unavailable")
	q.On("Query", mock.Anything, mock.Anything).Return(sampleReport(), nil)
	p.On("Publish", mock.Anything, "today", mock.Anything).Return(publishErr)

	err := r.PublishReport(context.Background())
	assert.ErrorIs(t, err, publishErr)
	assert.ErrorContains(t, err, "failed to publish report report-1")
	p.AssertNumberOfCalls(t, "Publish", 3)
}

func TestReporter_QueryError(t *testing.T) {
	q := &MockQuerier{}
	p := &MockPublisher{}
	r := newTestReporter(t, q, p)

	q.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("store down"))

	err := r.PublishReport(context.Background())
	assert.ErrorContains(t, err, "failed to aggregate window today")
	p.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

// countingQuerier returns an empty report and counts calls
type countingQuerier struct {
	calls atomic.Int32
}

func (c *countingQuerier) Query(ctx context.Context, req aggregator.Request) (*aggregator.Report, error) {
	c.calls.Add(1)
	return &aggregator.Report{Groups: map[aggregator.GroupKey]aggregator.Totals{}}, nil
}

func TestReporter_StartPublishesOnTick(t *testing.T) {
	q := &countingQuerier{}
	p := &MockPublisher{}
	p.On("Publish", mock.Anything, "today", mock.Anything).Return(nil)

	r := newTestReporter(t, q, p)
	r.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return q.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop after cancellation")
	}
}
