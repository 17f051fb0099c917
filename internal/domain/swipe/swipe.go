package swipe

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain"
)

// Direction is the kind of interest an actor expresses toward a target.
type Direction string

const (
	// Like expresses interest.
	Like Direction = "like"
	// Dislike expresses disinterest.
	Dislike Direction = "dislike"
	// Superlike expresses strong interest.
	Superlike Direction = "superlike"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Like, Dislike, Superlike:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidDirection, s)
	}
}

// Positive reports whether the direction can contribute to a match.
func (d Direction) Positive() bool { return d == Like || d == Superlike }

// Event is an append-only swipe record.
type Event struct {
	ActorID   string
	TargetID  string
	Direction Direction
	CreatedAt time.Time
}

// NewEvent validates and creates an Event.
func NewEvent(actor, target string, dir Direction, at time.Time) (Event, error) {
	if actor == "" || target == "" {
		return Event{}, fmt.Errorf("actor and target are required")
	}
	if actor == target {
		return Event{}, domain.ErrSelfSwipe
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return Event{}, err
	}
	return Event{ActorID: actor, TargetID: target, Direction: dir, CreatedAt: at}, nil
}

// Outcome is the result of recording a swipe. A duplicate swipe returns the
// outcome stored for the original one.
type Outcome struct {
	Direction Direction
	Matched   bool
	MatchID   string
	CreatedAt time.Time
}

// Pair orders two entity ids so that an unordered pair has one key.
func Pair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}
