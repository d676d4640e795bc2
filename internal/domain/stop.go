package domain

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for admission: higher rank is admitted first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Weight scales the distance to a candidate stop during sequencing.
// Values below 1 pull a stop earlier even when it is slightly farther away.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityUrgent:
		return 0.5
	case PriorityHigh:
		return 0.8
	case PriorityLow:
		return 1.2
	default:
		return 1.0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority maps an empty value to normal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("parse priority %q: %w", s, ErrInvalidInput)
	}
	return p, nil
}

// Optional delivery window. Either bound may be nil.
type TimeWindow struct {
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
}

type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Represents a single delivery location to be visited by a route.
// Stops are value types and are never mutated after creation.
type Stop struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"orderId"`
	Location       Coordinates `json:"location"`
	Address        string      `json:"address,omitempty"`
	Customer       Customer    `json:"customer"`
	Priority       Priority    `json:"priority"`
	Window         TimeWindow  `json:"timeWindow"`
	ServiceMinutes int         `json:"estimatedDuration"`
	OrderValue     float64     `json:"orderValue"`
}

// Deadline returns the latest bound of the stop's window, if any.
func (s Stop) Deadline() (time.Time, bool) {
	if s.Window.Latest == nil {
		return time.Time{}, false
	}
	return *s.Window.Latest, true
}

// NormalizeAddress is the lookup key for geocoded addresses.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
