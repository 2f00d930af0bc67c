// Package domain holds the local optimistic projections for workout and
// canvas aggregates, the operation types that mutate them, and the
// reconciliation rules for folding authoritative responses back in.
package domain

import (
	"errors"
)

var (
	// ErrExerciseNotFound is returned by precondition checks for an unknown exercise instance.
	ErrExerciseNotFound = errors.New("exercise instance not found")
	// ErrSetNotFound is returned by precondition checks for an unknown set.
	ErrSetNotFound = errors.New("set not found")
)

// SetStatus is the lifecycle state of a single set.
type SetStatus string

const (
	SetStatusPlanned SetStatus = "planned"
	SetStatusDone    SetStatus = "done"
	SetStatusSkipped SetStatus = "skipped"
)

// SetRecord is one set inside an exercise instance. Target* fields describe
// the plan; the unprefixed fields describe what actually happened. Field
// writes route to one side or the other depending on Status: editing a
// planned set changes the plan, editing a done set changes the record.
type SetRecord struct {
	ID           string
	Status       SetStatus
	TargetWeight float64
	TargetReps   int
	TargetRIR    int
	Weight       float64
	Reps         int
	RIR          int
	IsFailure    bool

	// localRev increases on every local apply so reconciliation can tell
	// whether the record was edited after a request was dispatched.
	localRev uint64
}

// LocalRev reports how many local applies have touched this record.
func (s *SetRecord) LocalRev() uint64 { return s.localRev }

// ExerciseInstance is one exercise within a workout, owning its sets.
type ExerciseInstance struct {
	ID         string
	ExerciseID string
	Name       string
	Sets       []*SetRecord
}

// Totals is the authority-computed workout summary. It is only ever written
// from reconciliation, never derived locally.
type Totals struct {
	Sets   int     `json:"sets"`
	Reps   int     `json:"reps"`
	Volume float64 `json:"volume"`
}

// Workout is the local optimistic projection of one active workout.
type Workout struct {
	ID        string
	UserID    string
	Name      string
	Totals    Totals
	Exercises []*ExerciseInstance
}

// Exercise returns the exercise instance with the given id, or nil.
func (w *Workout) Exercise(exerciseID string) *ExerciseInstance {
	for _, ex := range w.Exercises {
		if ex.ID == exerciseID {
			return ex
		}
	}
	return nil
}

// Set returns the set addressed by target, or nil.
func (w *Workout) Set(target Target) *SetRecord {
	ex := w.Exercise(target.ExerciseID)
	if ex == nil {
		return nil
	}
	for _, set := range ex.Sets {
		if set.ID == target.SetID {
			return set
		}
	}
	return nil
}

// ValidateTarget checks an operation's target before any network call is
// attempted. Removal targets are exempt: removing a missing child is a no-op
// by contract, not an error.
func (w *Workout) ValidateTarget(op Operation) error {
	switch op.Kind {
	case OpRemoveChild:
		return nil
	case OpSetField, OpLogCompletion:
		if w.Set(op.Target) == nil {
			if w.Exercise(op.Target.ExerciseID) == nil {
				return ErrExerciseNotFound
			}
			return ErrSetNotFound
		}
		return nil
	case OpAddChild:
		if w.Exercise(op.Target.ExerciseID) == nil {
			return ErrExerciseNotFound
		}
		return nil
	default:
		return nil
	}
}

// ApplyLocally mutates the projection synchronously. It is the only mutation
// path outside reconciliation, never blocks, and treats missing targets as
// no-ops so it can never fail.
func (w *Workout) ApplyLocally(op Operation) {
	switch op.Kind {
	case OpSetField:
		set := w.Set(op.Target)
		if set == nil {
			return
		}
		w.applyField(set, op)
	case OpAddChild:
		w.addSet(op)
	case OpRemoveChild:
		w.removeChild(op.Target)
	case OpLogCompletion:
		set := w.Set(op.Target)
		if set == nil {
			return
		}
		w.logCompletion(set, op)
	}
}

// applyField writes a single field, routing to the target slot while the set
// is still planned and to the actual slot once it is done.
func (w *Workout) applyField(set *SetRecord, op Operation) {
	val, ok := op.Payload["value"]
	if !ok {
		return
	}
	toTarget := set.Status == SetStatusPlanned

	switch op.Field {
	case "weight":
		weight, ok := val.AsFloat()
		if !ok {
			return
		}
		if toTarget {
			set.TargetWeight = weight
		} else {
			set.Weight = weight
		}
	case "reps":
		reps, ok := val.AsInt()
		if !ok {
			return
		}
		if toTarget {
			set.TargetReps = int(reps)
		} else {
			set.Reps = int(reps)
		}
	case "rir":
		rir, ok := val.AsInt()
		if !ok {
			return
		}
		if toTarget {
			set.TargetRIR = int(rir)
		} else {
			set.RIR = int(rir)
		}
	case "is_failure":
		failure, ok := val.AsBool()
		if !ok {
			return
		}
		set.IsFailure = failure
	case "status":
		status, ok := val.AsString()
		if !ok {
			return
		}
		switch SetStatus(status) {
		case SetStatusPlanned, SetStatusDone, SetStatusSkipped:
			set.Status = SetStatus(status)
		}
	default:
		return
	}
	set.localRev++
}

func (w *Workout) addSet(op Operation) {
	ex := w.Exercise(op.Target.ExerciseID)
	if ex == nil {
		return
	}

	setID := op.Target.SetID
	if id, ok := op.Payload["set_id"]; ok {
		if s, ok := id.AsString(); ok {
			setID = s
		}
	}
	if setID == "" {
		return
	}
	// Adding an id that already exists is treated as replay, not duplication.
	for _, existing := range ex.Sets {
		if existing.ID == setID {
			return
		}
	}

	set := &SetRecord{ID: setID, Status: SetStatusPlanned}
	if v, ok := op.Payload["target_weight"]; ok {
		if f, ok := v.AsFloat(); ok {
			set.TargetWeight = f
		}
	}
	if v, ok := op.Payload["target_reps"]; ok {
		if i, ok := v.AsInt(); ok {
			set.TargetReps = int(i)
		}
	}
	if v, ok := op.Payload["target_rir"]; ok {
		if i, ok := v.AsInt(); ok {
			set.TargetRIR = int(i)
		}
	}
	ex.Sets = append(ex.Sets, set)
}

// removeChild removes a set, or a whole exercise instance when no set id is
// given. Removing something already gone is a silent no-op.
func (w *Workout) removeChild(target Target) {
	if target.SetID == "" {
		for idx, ex := range w.Exercises {
			if ex.ID == target.ExerciseID {
				w.Exercises = append(w.Exercises[:idx], w.Exercises[idx+1:]...)
				return
			}
		}
		return
	}

	ex := w.Exercise(target.ExerciseID)
	if ex == nil {
		return
	}
	for idx, set := range ex.Sets {
		if set.ID == target.SetID {
			ex.Sets = append(ex.Sets[:idx], ex.Sets[idx+1:]...)
			return
		}
	}
}

// logCompletion records the performed values and flips the set to done.
func (w *Workout) logCompletion(set *SetRecord, op Operation) {
	if v, ok := op.Payload["weight"]; ok {
		if f, ok := v.AsFloat(); ok {
			set.Weight = f
		}
	}
	if v, ok := op.Payload["reps"]; ok {
		if i, ok := v.AsInt(); ok {
			set.Reps = int(i)
		}
	}
	if v, ok := op.Payload["rir"]; ok {
		if i, ok := v.AsInt(); ok {
			set.RIR = int(i)
		}
	}
	if v, ok := op.Payload["is_failure"]; ok {
		if b, ok := v.AsBool(); ok {
			set.IsFailure = b
		}
	}
	set.Status = SetStatusDone
	set.localRev++
}

// ReconcileTotals overwrites the aggregate summary with the authority's
// snapshot. Per-record optimistic fields are deliberately untouched: the
// server response is silent about them and silence never reverts a local
// edit.
func (w *Workout) ReconcileTotals(totals Totals) {
	w.Totals = totals
}
