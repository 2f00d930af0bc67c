// Package progress tracks agent progress as a monotonic stage indicator.
//
// Streaming agents deliver stage events with no ordering guarantee; a
// delayed "searching" event can land after "building" has already been
// shown. The tracker merges arrivals by keeping the maximum stage seen, so
// the displayed progress never regresses.
package progress

import (
	"fmt"
	"sync"
)

// Stage is a strictly ordered progress stage.
type Stage int

const (
	StageIdle Stage = iota
	StageUnderstanding
	StageSearching
	StageBuilding
	StageFinalizing
	StageComplete
)

// String returns the lowercase stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUnderstanding:
		return "understanding"
	case StageSearching:
		return "searching"
	case StageBuilding:
		return "building"
	case StageFinalizing:
		return "finalizing"
	case StageComplete:
		return "complete"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage maps a stage name to its ordinal.
func ParseStage(name string) (Stage, error) {
	switch name {
	case "idle":
		return StageIdle, nil
	case "understanding":
		return StageUnderstanding, nil
	case "searching":
		return StageSearching, nil
	case "building":
		return StageBuilding, nil
	case "finalizing":
		return StageFinalizing, nil
	case "complete":
		return StageComplete, nil
	default:
		return 0, fmt.Errorf("unknown stage %q", name)
	}
}

// Tracker holds the current stage and advances it monotonically.
type Tracker struct {
	mu       sync.Mutex
	current  Stage
	onChange func(Stage)
}

// NewTracker constructs a Tracker starting at idle. onChange, if non-nil, is
// called with the new stage after every effective transition.
func NewTracker(onChange func(Stage)) *Tracker {
	return &Tracker{current: StageIdle, onChange: onChange}
}

// Current returns the stage as last observed.
func (t *Tracker) Current() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Advance moves to the given stage and reports whether anything changed.
// Stages at or below the current one are ignored, which makes duplicate and
// out-of-order event delivery harmless.
func (t *Tracker) Advance(to Stage) bool {
	t.mu.Lock()
	if to <= t.current {
		t.mu.Unlock()
		return false
	}
	t.current = to
	callback := t.onChange
	t.mu.Unlock()

	if callback != nil {
		callback(to)
	}
	return true
}

// Complete forces the terminal stage unconditionally.
func (t *Tracker) Complete() {
	t.Advance(StageComplete)
}
