package validation

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mailgoal/mailgoal/internal/model"
)

const maxGoalLength = 500

// ValidateGoalText validates the goal description
func ValidateGoalText(goal string) error {
	trimmed := strings.TrimSpace(goal)

	if trimmed == "" {
		return errors.New("goal is required")
	}

	if len(trimmed) > maxGoalLength {
		return fmt.Errorf("goal is too long (max %d characters)", maxGoalLength)
	}

	return nil
}

func ValidateFrequency(frequency string) error {
	if !slices.Contains(model.Frequencies, frequency) {
		return fmt.Errorf("frequency must be one of %s", strings.Join(model.Frequencies, ", "))
	}
	return nil
}

// ValidateTone only checks shape; unknown personas get the default voice.
func ValidateTone(tone string) error {
	trimmed := strings.TrimSpace(tone)
	if trimmed == "" {
		return errors.New("tone is required")
	}
	if len(trimmed) > 32 {
		return errors.New("tone is too long (max 32 characters)")
	}
	return nil
}

// ParseDeadline accepts DD/MM/YYYY (the intake form format) or YYYY-MM-DD and
// returns the deadline as YYYY-MM-DD. The deadline may not be before today.
func ParseDeadline(value string, today time.Time) (string, error) {
	value = strings.TrimSpace(value)

	var day, month, year int
	var err error

	switch {
	case strings.Count(value, "/") == 2:
		parts := strings.Split(value, "/")
		day, err = strconv.Atoi(parts[0])
		if err == nil {
			month, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			year, err = strconv.Atoi(parts[2])
		}
	case strings.Count(value, "-") == 2:
		parts := strings.Split(value, "-")
		year, err = strconv.Atoi(parts[0])
		if err == nil {
			month, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			day, err = strconv.Atoi(parts[2])
		}
	default:
		return "", errors.New("invalid deadline date format, use DD/MM/YYYY")
	}

	if err != nil {
		return "", errors.New("invalid deadline date components, use DD/MM/YYYY")
	}
	// Stored deadlines are fixed-width YYYY-MM-DD.
	if year < 1000 || year > 9999 {
		return "", errors.New("invalid deadline year, use a four-digit year")
	}

	deadline := time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
	if deadline.Day() != day || int(deadline.Month()) != month || deadline.Year() != year {
		return "", errors.New("invalid deadline date components, use DD/MM/YYYY")
	}

	y, m, d := today.Date()
	if deadline.Before(time.Date(y, m, d, 0, 0, 0, 0, today.Location())) {
		return "", errors.New("deadline must be today or later")
	}

	return deadline.Format("2006-01-02"), nil
}
