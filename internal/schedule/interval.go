package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mailgoal/mailgoal/internal/model"
)

var ErrUnknownFrequency = errors.New("unknown frequency")

// Interval is the spacing between two reminders of one frequency.
// Exactly one of Days or Months is set.
type Interval struct {
	Days   int
	Months int
}

func (i Interval) String() string {
	if i.Months > 0 {
		return strconv.Itoa(i.Months) + "m"
	}
	return strconv.Itoa(i.Days) + "d"
}

// Intervals maps a frequency to its interval. It is the single source for both
// the due check and the next send date.
type Intervals map[string]Interval

// DefaultIntervals returns the built-in table.
//
// Biweekly is labelled "twice a week" to users and spaced 3 days apart. Older
// code paths used 14 days; override with FREQUENCY_INTERVALS=biweekly=14d if
// product decides the other way.
func DefaultIntervals() Intervals {
	return Intervals{
		model.FrequencyDaily:    {Days: 1},
		model.FrequencyWeekly:   {Days: 7},
		model.FrequencyBiweekly: {Days: 3},
		model.FrequencyMonthly:  {Months: 1},
	}
}

// ParseIntervals parses "daily=1d,weekly=7d,biweekly=14d,monthly=1m" on top of
// the defaults. Units: d (days), w (weeks), m (calendar months).
func ParseIntervals(raw string) (Intervals, error) {
	intervals := DefaultIntervals()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return intervals, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid interval %q: expected frequency=value", pair)
		}

		interval, err := parseInterval(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid interval for %s: %w", name, err)
		}

		intervals[strings.ToLower(strings.TrimSpace(name))] = interval
	}

	return intervals, nil
}

func parseInterval(value string) (Interval, error) {
	if len(value) < 2 {
		return Interval{}, fmt.Errorf("%q is too short", value)
	}

	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return Interval{}, fmt.Errorf("%q: %w", value, err)
	}
	if n <= 0 {
		return Interval{}, fmt.Errorf("%q must be positive", value)
	}

	switch value[len(value)-1] {
	case 'd':
		return Interval{Days: n}, nil
	case 'w':
		return Interval{Days: n * 7}, nil
	case 'm':
		return Interval{Months: n}, nil
	default:
		return Interval{}, fmt.Errorf("%q: unit must be d, w or m", value)
	}
}

func (t Intervals) Lookup(frequency string) (Interval, error) {
	interval, ok := t[frequency]
	if !ok {
		return Interval{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	return interval, nil
}

func (t Intervals) String() string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+t[name].String())
	}
	return strings.Join(parts, ",")
}
