// Package scheduler implements a pure spaced-repetition scheduling
// function. It holds no state: callers translate their stored review
// records into Items, pick the Outcome that matches the answer, and
// persist the resulting Item themselves.
package scheduler

import "time"

// State tracks where an item sits in its review lifecycle.
type State string

const (
	// StateLearning marks an item that has not yet graduated to the
	// long-interval review cycle.
	StateLearning State = "learning"
	// StateReview marks an item on the long-interval review cycle.
	StateReview State = "review"
)

// Outcome grades a single answer.
type Outcome string

const (
	OutcomeAgain Outcome = "again"
	OutcomeHard  Outcome = "hard"
	OutcomeGood  Outcome = "good"
)

const (
	// DefaultFactor is the ease factor assigned to new items.
	DefaultFactor = 2.5
	// MinimumFactor bounds how far repeated lapses can shrink the factor.
	MinimumFactor = 1.3

	// GraduatingInterval is the first review interval after learning.
	GraduatingInterval = 24 * time.Hour
	// RelapseInterval is the short interval applied after an "again".
	RelapseInterval = 10 * time.Minute
	// MinimumInterval floors every scheduled interval so a due date is
	// always strictly later than its review date.
	MinimumInterval = time.Minute

	hardIntervalGrowth = 1.2
	hardFactorPenalty  = 0.15
	lapseFactorPenalty = 0.2
)

// Item is the scheduler's view of one reviewable prompt.
type Item struct {
	State       State
	Interval    time.Duration
	ReviewCount int64
	LapseCount  int64
	Factor      float64
}

// NewItem returns a learning-state item about to graduate, the shape
// used for prompts that have never been reviewed.
func NewItem() Item {
	return Item{State: StateLearning, Factor: DefaultFactor}
}

// Schedule computes the item that results from each possible outcome.
// delay is how overdue the answer was; late reviews that still succeed
// earn part of the overshoot as extra interval.
func Schedule(item Item, delay time.Duration) map[Outcome]Item {
	if item.Factor < MinimumFactor {
		item.Factor = DefaultFactor
	}
	if delay < 0 {
		delay = 0
	}

	return map[Outcome]Item{
		OutcomeAgain: scheduleAgain(item),
		OutcomeHard:  scheduleHard(item),
		OutcomeGood:  scheduleGood(item, delay),
	}
}

func scheduleAgain(item Item) Item {
	next := item
	next.LapseCount++
	next.Factor = clampFactor(item.Factor - lapseFactorPenalty)
	next.Interval = RelapseInterval
	if item.State == StateLearning {
		next.State = StateLearning
	}
	return next
}

func scheduleHard(item Item) Item {
	next := item
	next.State = StateReview
	next.ReviewCount++
	next.Factor = clampFactor(item.Factor - hardFactorPenalty)
	if item.State == StateLearning {
		next.Interval = GraduatingInterval
		return next
	}
	next.Interval = clampInterval(time.Duration(float64(item.Interval) * hardIntervalGrowth))
	return next
}

func scheduleGood(item Item, delay time.Duration) Item {
	next := item
	next.State = StateReview
	next.ReviewCount++
	if item.State == StateLearning {
		next.Interval = GraduatingInterval
		return next
	}
	grown := time.Duration(float64(item.Interval+delay/2) * item.Factor)
	if grown < item.Interval {
		grown = item.Interval
	}
	next.Interval = clampInterval(grown)
	return next
}

// Fuzz applies a small randomized adjustment (±5%) to an interval so
// reviews scheduled together do not cluster on the same day. random
// must yield values in [0, 1).
func Fuzz(interval time.Duration, random func() float64) time.Duration {
	if interval <= 0 {
		return MinimumInterval
	}
	scale := 0.95 + 0.1*random()
	return clampInterval(time.Duration(float64(interval) * scale))
}

func clampFactor(factor float64) float64 {
	if factor < MinimumFactor {
		return MinimumFactor
	}
	return factor
}

func clampInterval(interval time.Duration) time.Duration {
	if interval < MinimumInterval {
		return MinimumInterval
	}
	return interval
}
