package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvanceNeverRegresses(t *testing.T) {
	var observed []Stage
	tracker := NewTracker(func(s Stage) { observed = append(observed, s) })

	// Out-of-order delivery: searching, then a late understanding, then building.
	require.True(t, tracker.Advance(StageSearching))
	require.False(t, tracker.Advance(StageUnderstanding))
	require.True(t, tracker.Advance(StageBuilding))

	require.Equal(t, []Stage{StageSearching, StageBuilding}, observed)
	require.Equal(t, StageBuilding, tracker.Current())
}

func TestObservedSequenceIsNonDecreasing(t *testing.T) {
	tracker := NewTracker(nil)
	arrivals := []Stage{
		StageBuilding, StageIdle, StageSearching, StageFinalizing,
		StageUnderstanding, StageBuilding, StageComplete, StageSearching,
	}

	last := tracker.Current()
	for _, stage := range arrivals {
		tracker.Advance(stage)
		current := tracker.Current()
		require.GreaterOrEqual(t, current, last)
		last = current
	}
	require.Equal(t, StageComplete, tracker.Current())
}

func TestDuplicateEventIsNoOp(t *testing.T) {
	calls := 0
	tracker := NewTracker(func(Stage) { calls++ })

	require.True(t, tracker.Advance(StageSearching))
	require.False(t, tracker.Advance(StageSearching))
	require.Equal(t, 1, calls)
}

func TestCompleteForcesTerminalStage(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Advance(StageUnderstanding)

	tracker.Complete()
	require.Equal(t, StageComplete, tracker.Current())

	// Nothing moves past complete.
	require.False(t, tracker.Advance(StageBuilding))
	require.Equal(t, StageComplete, tracker.Current())
}

func TestParseStageRoundTrip(t *testing.T) {
	for _, stage := range []Stage{StageIdle, StageUnderstanding, StageSearching, StageBuilding, StageFinalizing, StageComplete} {
		parsed, err := ParseStage(stage.String())
		require.NoError(t, err)
		require.Equal(t, stage, parsed)
	}

	_, err := ParseStage("warp-speed")
	require.Error(t, err)
}
