package api

import (
	"time"

	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/value"
)

// SetView mirrors the authority's representation of one set.
type SetView struct {
	SetID        string  `json:"set_id"`
	Status       string  `json:"status"`
	TargetWeight float64 `json:"target_weight,omitempty"`
	TargetReps   int     `json:"target_reps,omitempty"`
	TargetRIR    int     `json:"target_rir,omitempty"`
	Weight       float64 `json:"weight,omitempty"`
	Reps         int     `json:"reps,omitempty"`
	RIR          int     `json:"rir,omitempty"`
}

// ExerciseView mirrors the authority's representation of one exercise instance.
type ExerciseView struct {
	ExerciseInstanceID string    `json:"exercise_instance_id"`
	ExerciseID         string    `json:"exercise_id"`
	Name               string    `json:"name,omitempty"`
	Sets               []SetView `json:"sets,omitempty"`
}

// StartActiveWorkoutRequest creates the workout aggregate on the authority.
type StartActiveWorkoutRequest struct {
	Name             string         `json:"name,omitempty"`
	SourceTemplateID string         `json:"source_template_id,omitempty"`
	SourceRoutineID  string         `json:"source_routine_id,omitempty"`
	Exercises        []ExerciseView `json:"exercises,omitempty"`
}

// StartActiveWorkoutResponse returns the authority-assigned aggregate id.
type StartActiveWorkoutResponse struct {
	Success   bool           `json:"success"`
	WorkoutID string         `json:"workout_id"`
	UserID    string         `json:"user_id"`
	Exercises []ExerciseView `json:"exercises,omitempty"`
	Error     *ErrorBody     `json:"error,omitempty"`
}

// SetValues carries the performed numbers for a logged set. Reps is always
// present; weight and RIR are optional.
type SetValues struct {
	Weight *float64 `json:"weight,omitempty"`
	Reps   int      `json:"reps"`
	RIR    *int     `json:"rir,omitempty"`
}

// LogSetRequest records a completed set. This is the hot path.
type LogSetRequest struct {
	WorkoutID          string    `json:"workout_id"`
	ExerciseInstanceID string    `json:"exercise_instance_id"`
	SetID              string    `json:"set_id"`
	Values             SetValues `json:"values"`
	IsFailure          bool      `json:"is_failure,omitempty"`
	IdempotencyKey     string    `json:"idempotency_key"`
	ClientTimestamp    time.Time `json:"client_timestamp"`
}

// LogSetResponse returns the recomputed workout totals.
type LogSetResponse struct {
	Success bool          `json:"success"`
	Totals  domain.Totals `json:"totals"`
	Error   *ErrorBody    `json:"error,omitempty"`
}

// PatchTarget addresses a child record in a patch op.
type PatchTarget struct {
	ExerciseInstanceID string `json:"exercise_instance_id"`
	SetID              string `json:"set_id,omitempty"`
}

// PatchOp is one wire-level mutation inside patchActiveWorkout.
type PatchOp struct {
	Op     string                 `json:"op"`
	Target PatchTarget            `json:"target"`
	Field  string                 `json:"field,omitempty"`
	Value  *value.Value           `json:"value,omitempty"`
	Extra  map[string]value.Value `json:"extra,omitempty"`
}

// NewPatchOp maps a domain operation onto its wire form.
func NewPatchOp(op domain.Operation) PatchOp {
	wire := PatchOp{
		Op: op.Kind.String(),
		Target: PatchTarget{
			ExerciseInstanceID: op.Target.ExerciseID,
			SetID:              op.Target.SetID,
		},
		Field: op.Field,
	}
	if v, ok := op.Payload["value"]; ok {
		wire.Value = &v
	}
	extra := make(map[string]value.Value)
	for key, val := range op.Payload {
		if key == "value" {
			continue
		}
		extra[key] = val
	}
	if len(extra) > 0 {
		wire.Extra = extra
	}
	return wire
}

// PatchActiveWorkoutRequest applies one or more ops to the workout.
type PatchActiveWorkoutRequest struct {
	WorkoutID       string    `json:"workout_id"`
	Ops             []PatchOp `json:"ops"`
	Cause           string    `json:"cause,omitempty"`
	UISource        string    `json:"ui_source,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key"`
	ClientTimestamp time.Time `json:"client_timestamp"`
	AIScope         string    `json:"ai_scope,omitempty"`
}

// PatchActiveWorkoutResponse acknowledges a patch with fresh totals.
type PatchActiveWorkoutResponse struct {
	Success bool          `json:"success"`
	EventID string        `json:"event_id,omitempty"`
	Totals  domain.Totals `json:"totals"`
	Error   *ErrorBody    `json:"error,omitempty"`
}

// AutofillUpdate adjusts one existing set during an AI-driven bulk patch.
type AutofillUpdate struct {
	SetID  string                 `json:"set_id"`
	Fields map[string]value.Value `json:"fields"`
}

// AutofillAddition appends a new planned set during an AI-driven bulk patch.
type AutofillAddition struct {
	SetID  string                 `json:"set_id"`
	Fields map[string]value.Value `json:"fields"`
}

// AutofillExerciseRequest applies an AI-computed bulk patch to one exercise.
type AutofillExerciseRequest struct {
	WorkoutID          string             `json:"workout_id"`
	ExerciseInstanceID string             `json:"exercise_instance_id"`
	Updates            []AutofillUpdate   `json:"updates"`
	Additions          []AutofillAddition `json:"additions"`
	IdempotencyKey     string             `json:"idempotency_key"`
	ClientTimestamp    time.Time          `json:"client_timestamp"`
}

// AutofillExerciseResponse acknowledges a bulk patch with fresh totals.
type AutofillExerciseResponse struct {
	Success bool          `json:"success"`
	Totals  domain.Totals `json:"totals"`
	Error   *ErrorBody    `json:"error,omitempty"`
}

// CompleteActiveWorkoutRequest finalizes and destroys the aggregate.
type CompleteActiveWorkoutRequest struct {
	WorkoutID       string    `json:"workout_id"`
	Discard         bool      `json:"discard,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key"`
	ClientTimestamp time.Time `json:"client_timestamp"`
}

// CompleteActiveWorkoutResponse acknowledges completion with final totals.
type CompleteActiveWorkoutResponse struct {
	Success bool          `json:"success"`
	Totals  domain.Totals `json:"totals"`
	Error   *ErrorBody    `json:"error,omitempty"`
}

// ActionEnvelope is the wire form of a canvas action.
type ActionEnvelope struct {
	Type           string                 `json:"type"`
	CardID         string                 `json:"card_id,omitempty"`
	Payload        map[string]value.Value `json:"payload,omitempty"`
	By             string                 `json:"by"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// ApplyActionRequest submits one OCC-guarded canvas mutation. The canvas
// endpoints use camelCase identifiers on the wire.
type ApplyActionRequest struct {
	CanvasID        string         `json:"canvasId"`
	ExpectedVersion *int64         `json:"expected_version,omitempty"`
	Action          ActionEnvelope `json:"action"`
}

// CanvasData is the payload of a successful canvas response.
type CanvasData struct {
	State        map[string]value.Value `json:"state,omitempty"`
	ChangedCards []domain.ChangedCard   `json:"changed_cards,omitempty"`
	Version      *int64                 `json:"version,omitempty"`
}

// ApplyActionResponse acknowledges a canvas action.
type ApplyActionResponse struct {
	Success bool        `json:"success"`
	Data    *CanvasData `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// BootstrapCanvasRequest creates the canvas aggregate.
type BootstrapCanvasRequest struct {
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
}

// BootstrapCanvasData carries the authority-assigned canvas id.
type BootstrapCanvasData struct {
	CanvasID string `json:"canvasId"`
}

// BootstrapCanvasResponse acknowledges canvas creation.
type BootstrapCanvasResponse struct {
	Success bool                 `json:"success"`
	Data    *BootstrapCanvasData `json:"data,omitempty"`
	Error   *ErrorBody           `json:"error,omitempty"`
}

// GetCanvasStateRequest fetches the authoritative canvas snapshot, used to
// re-derive expected_version after a conflict.
type GetCanvasStateRequest struct {
	CanvasID string `json:"canvasId"`
}

// GetCanvasStateResponse returns the current canvas snapshot.
type GetCanvasStateResponse struct {
	Success bool        `json:"success"`
	Data    *CanvasData `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}
