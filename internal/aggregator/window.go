package aggregator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrInvalidWindow indicates a window that cannot be resolved to a date range
var ErrInvalidWindow = errors.New("invalid window")

// MaxWindowDays bounds the number of calendar days a window may cover
const MaxWindowDays = 366

type windowKind int

const (
	windowToday windowKind = iota
	windowYesterday
	windowTrailing
	windowBetween
)

// Window is a date range described relative to the query time. It is only
// resolved to concrete dates when a query runs.
type Window struct {
	kind  windowKind
	days  int
	start civil.Date
	end   civil.Date
}

// Today covers the current calendar day
func Today() Window {
	return Window{kind: windowToday}
}

// Yesterday covers the previous calendar day
func Yesterday() Window {
	return Window{kind: windowYesterday}
}

// Trailing covers the last n calendar days, today included
func Trailing(n int) Window {
	return Window{kind: windowTrailing, days: n}
}

// Between covers an explicit inclusive date range
func Between(start, end civil.Date) Window {
	return Window{kind: windowBetween, start: start, end: end}
}

// ParseWindow accepts today, yesterday, week, trailing:<n> and
// <YYYY-MM-DD>..<YYYY-MM-DD>
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "today":
		return Today(), nil
	case "yesterday":
		return Yesterday(), nil
	case "week":
		return Trailing(7), nil
	}

	if rest, ok := strings.CutPrefix(s, "trailing:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return Window{}, fmt.Errorf("%w: trailing day count %q", ErrInvalidWindow, rest)
		}
		w := Trailing(n)
		if err := w.validate(); err != nil {
			return Window{}, err
		}
		return w, nil
	}

	if from, to, ok := strings.Cut(s, ".."); ok {
		start, err := civil.ParseDate(from)
		if err != nil {
			return Window{}, fmt.Errorf("%w: start date %q", ErrInvalidWindow, from)
		}
		end, err := civil.ParseDate(to)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end date %q", ErrInvalidWindow, to)
		}
		w := Between(start, end)
		if err := w.validate(); err != nil {
			return Window{}, err
		}
		return w, nil
	}

	return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

func (w Window) validate() error {
	switch w.kind {
	case windowTrailing:
		if w.days < 1 {
			return fmt.Errorf("%w: trailing window needs at least one day", ErrInvalidWindow)
		}
		if w.days > MaxWindowDays {
			return fmt.Errorf("%w: spans %d days, at most %d allowed", ErrInvalidWindow, w.days, MaxWindowDays)
		}
	case windowBetween:
		if !w.start.IsValid() || !w.end.IsValid() || w.end.Before(w.start) {
			return fmt.Errorf("%w: range %s..%s", ErrInvalidWindow, w.start, w.end)
		}
		if days := w.end.DaysSince(w.start) + 1; days > MaxWindowDays {
			return fmt.Errorf("%w: spans %d days, at most %d allowed", ErrInvalidWindow, days, MaxWindowDays)
		}
	}
	return nil
}

// Resolve converts the window into an inclusive date range as seen at now in loc
func (w Window) Resolve(now time.Time, loc *time.Location) (civil.Date, civil.Date, error) {
	if err := w.validate(); err != nil {
		return civil.Date{}, civil.Date{}, err
	}

	today := civil.DateOf(now.In(loc))

	switch w.kind {
	case windowYesterday:
		d := today.AddDays(-1)
		return d, d, nil
	case windowTrailing:
		return today.AddDays(1 - w.days), today, nil
	case windowBetween:
		return w.start, w.end, nil
	default:
		return today, today, nil
	}
}

func (w Window) String() string {
	switch w.kind {
	case windowYesterday:
		return "yesterday"
	case windowTrailing:
		return "trailing:" + strconv.Itoa(w.days)
	case windowBetween:
		return w.start.String() + ".." + w.end.String()
	default:
		return "today"
	}
}
