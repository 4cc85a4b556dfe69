// Package confidence scores how likely a learned network action is to be
// useful for the navigation in progress. Everything here is pure.
package confidence

import "time"

// Thresholds applied to a computed confidence.
const (
	PreconnectMin  = 90
	PreresolveMin  = 60
	RedirectLikely = 75
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// Action is what a confidence score earns.
type Action int

const (
	None Action = iota
	Preresolve
	Preconnect
)

func (a Action) String() string {
	switch a {
	case Preconnect:
		return "preconnect"
	case Preresolve:
		return "preresolve"
	default:
		return "none"
	}
}

// GlobalDegradation is the penalty applied to every child of a top-level
// resource, based on how long ago that resource was last loaded.
func GlobalDegradation(now, lastLoad time.Time) int {
	delta := now.Sub(lastLoad)
	switch {
	case delta < Day:
		return 0
	case delta < Week:
		return 5
	case delta < Month:
		return 10
	case delta < Year:
		return 25
	}
	return 50
}

// BaseConfidence is the percentage of parent loads that included the child.
// It reports false when total is not positive.
func BaseConfidence(hits, total int) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	return hits * 100 / total, true
}

// Confidence combines the base confidence with staleness and global
// degradation.
//
// lastHit is when the child was last seen; lastPossible is when the parent
// was last loaded. A child that missed the most recent parent load can never
// reach PreconnectMin.
func Confidence(base int, lastHit, lastPossible time.Time, globalDegradation int) int {
	ceiling := 100
	stale := 0

	if lastHit.Before(lastPossible) {
		ceiling = PreconnectMin - 1

		delta := lastPossible.Sub(lastHit)
		switch {
		case delta == 0:
			stale = 0
		case delta < Day:
			stale = 1
		case delta < Week:
			stale = 10
		case delta < Month:
			stale = 25
		case delta < Year:
			stale = 50
		default:
			stale = 100
			ceiling = 0
		}
	}

	c := base - stale - globalDegradation
	c = max(c, 0)
	return min(c, ceiling)
}

// Classify maps a confidence to the action it justifies.
func Classify(confidence int) Action {
	switch {
	case confidence >= PreconnectMin:
		return Preconnect
	case confidence >= PreresolveMin:
		return Preresolve
	}
	return None
}
