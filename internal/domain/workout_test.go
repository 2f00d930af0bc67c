package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/syncengine/internal/value"
)

func newTestWorkout() *Workout {
	return &Workout{
		ID:     "w-1",
		UserID: "user-1",
		Exercises: []*ExerciseInstance{
			{
				ID:         "ex-1",
				ExerciseID: "bench-press",
				Name:       "Bench Press",
				Sets: []*SetRecord{
					{ID: "set-1", Status: SetStatusPlanned, TargetReps: 10, TargetRIR: 2},
				},
			},
		},
	}
}

func setField(target Target, field string, val value.Value) Operation {
	return Operation{
		Kind:    OpSetField,
		Target:  target,
		Field:   field,
		Payload: map[string]value.Value{"value": val},
	}
}

func TestSetFieldRoutesToTargetSlotWhilePlanned(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}

	w.ApplyLocally(setField(target, "weight", value.Float(60)))

	set := w.Set(target)
	require.Equal(t, 60.0, set.TargetWeight)
	require.Zero(t, set.Weight, "actual slot must stay untouched for a planned set")
}

func TestSetFieldRoutesToActualSlotWhenDone(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}
	w.Set(target).Status = SetStatusDone

	w.ApplyLocally(setField(target, "weight", value.Float(62.5)))

	set := w.Set(target)
	require.Equal(t, 62.5, set.Weight)
	require.Zero(t, set.TargetWeight, "target slot must stay untouched for a done set")
}

func TestSetFieldRepsKeepsIntegerKind(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}

	// A float payload for an integer field is ignored rather than truncated.
	w.ApplyLocally(setField(target, "reps", value.Float(8.5)))
	require.Equal(t, 10, w.Set(target).TargetReps)

	w.ApplyLocally(setField(target, "reps", value.Int(8)))
	require.Equal(t, 8, w.Set(target).TargetReps)
}

func TestLogCompletionFlipsStatusAndWritesActuals(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}

	w.ApplyLocally(Operation{
		Kind:   OpLogCompletion,
		Target: target,
		Payload: map[string]value.Value{
			"reps":   value.Int(8),
			"rir":    value.Int(1),
			"weight": value.Float(42.5),
		},
	})

	set := w.Set(target)
	require.Equal(t, SetStatusDone, set.Status)
	require.Equal(t, 8, set.Reps)
	require.Equal(t, 1, set.RIR)
	require.Equal(t, 42.5, set.Weight)
	require.Equal(t, 10, set.TargetReps, "plan must survive completion")
}

func TestAddChildAppendsSet(t *testing.T) {
	w := newTestWorkout()

	op := Operation{
		Kind:   OpAddChild,
		Target: Target{ExerciseID: "ex-1"},
		Payload: map[string]value.Value{
			"set_id":      value.String("set-2"),
			"target_reps": value.Int(12),
		},
	}
	w.ApplyLocally(op)
	require.Len(t, w.Exercise("ex-1").Sets, 2)
	require.Equal(t, 12, w.Set(Target{ExerciseID: "ex-1", SetID: "set-2"}).TargetReps)

	// Replaying the same add is a no-op.
	w.ApplyLocally(op)
	require.Len(t, w.Exercise("ex-1").Sets, 2)
}

func TestRemoveChildIsIdempotent(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}

	w.ApplyLocally(Operation{Kind: OpRemoveChild, Target: target})
	require.Empty(t, w.Exercise("ex-1").Sets)

	// Removing again, and removing something never present, are no-ops.
	w.ApplyLocally(Operation{Kind: OpRemoveChild, Target: target})
	w.ApplyLocally(Operation{Kind: OpRemoveChild, Target: Target{ExerciseID: "ex-1", SetID: "ghost"}})
	require.Empty(t, w.Exercise("ex-1").Sets)
}

func TestValidateTarget(t *testing.T) {
	w := newTestWorkout()

	err := w.ValidateTarget(Operation{Kind: OpSetField, Target: Target{ExerciseID: "nope", SetID: "set-1"}})
	require.ErrorIs(t, err, ErrExerciseNotFound)

	err = w.ValidateTarget(Operation{Kind: OpSetField, Target: Target{ExerciseID: "ex-1", SetID: "nope"}})
	require.ErrorIs(t, err, ErrSetNotFound)

	require.NoError(t, w.ValidateTarget(Operation{Kind: OpRemoveChild, Target: Target{ExerciseID: "nope", SetID: "nope"}}))
}

func TestReconcileTotalsOverwrites(t *testing.T) {
	w := newTestWorkout()
	w.Totals = Totals{Sets: 99, Reps: 99, Volume: 99}

	w.ReconcileTotals(Totals{Sets: 1, Reps: 8, Volume: 340})
	require.Equal(t, Totals{Sets: 1, Reps: 8, Volume: 340}, w.Totals)
}

func TestLocalRevBumpsOnApply(t *testing.T) {
	w := newTestWorkout()
	target := Target{ExerciseID: "ex-1", SetID: "set-1"}
	require.Zero(t, w.Set(target).LocalRev())

	w.ApplyLocally(setField(target, "weight", value.Float(50)))
	require.Equal(t, uint64(1), w.Set(target).LocalRev())

	w.ApplyLocally(setField(target, "reps", value.Int(5)))
	require.Equal(t, uint64(2), w.Set(target).LocalRev())
}
