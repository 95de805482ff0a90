package aggregator

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		input    string
		expected Window
		wantErr  bool
	}{
		{input: "today", expected: Today()},
		{input: " Yesterday ", expected: Yesterday()},
		{input: "week", expected: Trailing(7)},
		{input: "trailing:30", expected: Trailing(30)},
		{input: "2024-03-01..2024-03-31", expected: Between(civil.Date{Year: 2024, Month: 3, Day: 1}, civil.Date{Year: 2024, Month: 3, Day: 31})},
		{input: "trailing:366", expected: Trailing(366)},
		{input: "2024-01-01..2024-12-31", expected: Between(civil.Date{Year: 2024, Month: 1, Day: 1}, civil.Date{Year: 2024, Month: 12, Day: 31})},
		{input: "trailing:0", wantErr: true},
		{input: "trailing:367", wantErr: true},
		{input: "trailing:99999999", wantErr: true},
		{input: "2024-01-01..2025-01-01", wantErr: true},
		{input: "0001-01-01..9999-12-31", wantErr: true},
		{input: "trailing:abc", wantErr: true},
		{input: "2024-03-31..2024-03-01", wantErr: true},
		{input: "2024-13-01..2024-03-01", wantErr: true},
		{input: "month", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			w, err := ParseWindow(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWindow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, w)
		})
	}
}

func TestWindow_Resolve(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	// 20:00 UTC on the 10th is already the 11th in ICT
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	day := func(d int) civil.Date { return civil.Date{Year: 2024, Month: 3, Day: d} }

	tests := []struct {
		name     string
		window   Window
		from, to civil.Date
	}{
		{name: "today", window: Today(), from: day(11), to: day(11)},
		{name: "yesterday", window: Yesterday(), from: day(10), to: day(10)},
		{name: "trailing 1 is today", window: Trailing(1), from: day(11), to: day(11)},
		{name: "trailing 7", window: Trailing(7), from: day(5), to: day(11)},
		{name: "between", window: Between(day(1), day(3)), from: day(1), to: day(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := tt.window.Resolve(now, loc)
			require.NoError(t, err)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}

	for _, w := range []Window{Trailing(0), Trailing(MaxWindowDays + 1), Between(day(1), civil.Date{Year: 2025, Month: 3, Day: 1})} {
		_, _, err := w.Resolve(now, loc)
		assert.ErrorIs(t, err, ErrInvalidWindow, w.String())
	}
}

func TestWindow_StringRoundTrip(t *testing.T) {
	for _, w := range []Window{Today(), Yesterday(), Trailing(14), Between(civil.Date{Year: 2024, Month: 1, Day: 1}, civil.Date{Year: 2024, Month: 1, Day: 2})} {
		parsed, err := ParseWindow(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, parsed)
	}
}
