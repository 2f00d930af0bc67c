package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/idempotency"
	"example.com/syncengine/internal/journal"
	"example.com/syncengine/internal/value"
)

var (
	// ErrNoActiveWorkout is returned when a mutation arrives before Start.
	ErrNoActiveWorkout = errors.New("no active workout")
	// ErrWorkoutActive is returned when Start is called on a live session.
	ErrWorkoutActive = errors.New("workout already active")
)

// WorkoutSession owns one active workout: it builds operations from intent,
// applies them to the local projection before any network traffic, and
// reconciles authoritative totals as acknowledgments arrive.
type WorkoutSession struct {
	client  *api.Client
	keys    *idempotency.Keys
	journal *journal.Journal
	logger  *log.Logger
	notify  *notifier
	dsp     *dispatcher

	mu      sync.Mutex
	workout *domain.Workout
}

// NewWorkoutSession constructs a session around the given authority client.
func NewWorkoutSession(client *api.Client, keys *idempotency.Keys, opts ...SessionOption) *WorkoutSession {
	cfg := newSessionConfig("[workout] ", opts)
	s := &WorkoutSession{
		client:  client,
		keys:    keys,
		journal: cfg.journal,
		logger:  cfg.logger,
		notify:  newNotifier(cfg.eventBuffer),
	}
	s.dsp = newDispatcher("workout", keys, cfg.journal, s.notify, cfg.logger)
	return s
}

// Events exposes the change-notification channel.
func (s *WorkoutSession) Events() <-chan ChangeEvent {
	return s.notify.Events()
}

// Pending reports operations not yet acknowledged.
func (s *WorkoutSession) Pending() int {
	return s.dsp.Pending()
}

// SyncOnce synchronously drains the pending queue.
func (s *WorkoutSession) SyncOnce(ctx context.Context) error {
	return s.dsp.SyncOnce(ctx)
}

// Run drives background delivery until the context is cancelled.
func (s *WorkoutSession) Run(ctx context.Context, pollInterval time.Duration) {
	s.dsp.Run(ctx, pollInterval)
}

// Workout returns the local projection. Reads belong to the session's owning
// execution context; the dispatcher only touches the projection under the
// session lock during reconciliation.
func (s *WorkoutSession) Workout() *domain.Workout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workout
}

// Totals returns the last reconciled aggregate summary.
func (s *WorkoutSession) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workout == nil {
		return domain.Totals{}
	}
	return s.workout.Totals
}

// SetPlan describes one planned set in a StartWorkoutInput.
type SetPlan struct {
	TargetWeight float64
	TargetReps   int
	TargetRIR    int
}

// ExercisePlan describes one exercise in a StartWorkoutInput.
type ExercisePlan struct {
	ExerciseID string
	Name       string
	Sets       []SetPlan
}

// StartWorkoutInput seeds a new aggregate on the authority.
type StartWorkoutInput struct {
	Name             string
	SourceTemplateID string
	SourceRoutineID  string
	Exercises        []ExercisePlan
}

// Start creates the aggregate. Aggregate ids are always authority-assigned;
// there is no local-only creation.
func (s *WorkoutSession) Start(ctx context.Context, input StartWorkoutInput) error {
	s.mu.Lock()
	if s.workout != nil {
		s.mu.Unlock()
		return ErrWorkoutActive
	}
	s.mu.Unlock()

	req := api.StartActiveWorkoutRequest{
		Name:             input.Name,
		SourceTemplateID: input.SourceTemplateID,
		SourceRoutineID:  input.SourceRoutineID,
	}
	for _, ex := range input.Exercises {
		view := api.ExerciseView{ExerciseID: ex.ExerciseID, Name: ex.Name}
		for _, set := range ex.Sets {
			view.Sets = append(view.Sets, api.SetView{
				Status:       string(domain.SetStatusPlanned),
				TargetWeight: set.TargetWeight,
				TargetReps:   set.TargetReps,
				TargetRIR:    set.TargetRIR,
			})
		}
		req.Exercises = append(req.Exercises, view)
	}

	resp, err := s.client.StartActiveWorkout(ctx, req)
	if err != nil {
		return err
	}

	workout := &domain.Workout{
		ID:     resp.WorkoutID,
		UserID: resp.UserID,
		Name:   input.Name,
	}
	for _, view := range resp.Exercises {
		instance := &domain.ExerciseInstance{
			ID:         view.ExerciseInstanceID,
			ExerciseID: view.ExerciseID,
			Name:       view.Name,
		}
		for _, sv := range view.Sets {
			status := domain.SetStatus(sv.Status)
			if status == "" {
				status = domain.SetStatusPlanned
			}
			instance.Sets = append(instance.Sets, &domain.SetRecord{
				ID:           sv.SetID,
				Status:       status,
				TargetWeight: sv.TargetWeight,
				TargetReps:   sv.TargetReps,
				TargetRIR:    sv.TargetRIR,
				Weight:       sv.Weight,
				Reps:         sv.Reps,
				RIR:          sv.RIR,
			})
		}
		workout.Exercises = append(workout.Exercises, instance)
	}

	s.mu.Lock()
	s.workout = workout
	s.mu.Unlock()
	return nil
}

// LogSetInput carries the performed numbers for one set.
type LogSetInput struct {
	ExerciseID string
	SetID      string
	Weight     *float64
	Reps       int
	RIR        *int
	IsFailure  bool
}

// LogSet records a completed set. The projection flips to done immediately;
// the authority call is queued behind it. Returns the operation's
// idempotency key.
func (s *WorkoutSession) LogSet(ctx context.Context, input LogSetInput) (string, error) {
	payload := map[string]value.Value{
		"reps": value.Int(int64(input.Reps)),
	}
	if input.Weight != nil {
		payload["weight"] = value.Float(*input.Weight)
	}
	if input.RIR != nil {
		payload["rir"] = value.Int(int64(*input.RIR))
	}
	if input.IsFailure {
		payload["is_failure"] = value.Bool(true)
	}

	op := domain.Operation{
		Kind:            domain.OpLogCompletion,
		Target:          domain.Target{ExerciseID: input.ExerciseID, SetID: input.SetID},
		Payload:         payload,
		ClientTimestamp: time.Now().UTC(),
	}

	workoutID, err := s.applyLocally(&op, "log_set")
	if err != nil {
		return "", err
	}

	req := api.LogSetRequest{
		WorkoutID:          workoutID,
		ExerciseInstanceID: input.ExerciseID,
		SetID:              input.SetID,
		Values: api.SetValues{
			Weight: input.Weight,
			Reps:   input.Reps,
			RIR:    input.RIR,
		},
		IsFailure:       input.IsFailure,
		IdempotencyKey:  op.IdempotencyKey,
		ClientTimestamp: op.ClientTimestamp,
	}

	s.enqueue(ctx, workoutID, &op, func(ctx context.Context) error {
		resp, err := s.client.LogSet(ctx, req)
		if err != nil {
			return err
		}
		s.reconcileTotals(resp.Totals)
		return nil
	})
	return op.IdempotencyKey, nil
}

// FieldPatchInput mutates one field on one set.
type FieldPatchInput struct {
	ExerciseID string
	SetID      string
	Field      string
	Value      value.Value
	Cause      string
	UISource   string
}

// PatchField edits a single field, routing to the plan or the record
// depending on the set's lifecycle state.
func (s *WorkoutSession) PatchField(ctx context.Context, input FieldPatchInput) (string, error) {
	op := domain.Operation{
		Kind:            domain.OpSetField,
		Target:          domain.Target{ExerciseID: input.ExerciseID, SetID: input.SetID},
		Field:           input.Field,
		Payload:         map[string]value.Value{"value": input.Value},
		ClientTimestamp: time.Now().UTC(),
		Cause:           input.Cause,
		UISource:        input.UISource,
	}
	return s.enqueuePatch(ctx, &op, "patch_field")
}

// AddSetInput appends a planned set to an exercise.
type AddSetInput struct {
	ExerciseID   string
	SetID        string
	TargetWeight float64
	TargetReps   int
	TargetRIR    int
	Cause        string
	UISource     string
}

// AddSet appends a new planned set.
func (s *WorkoutSession) AddSet(ctx context.Context, input AddSetInput) (string, error) {
	payload := map[string]value.Value{
		"set_id": value.String(input.SetID),
	}
	if input.TargetWeight != 0 {
		payload["target_weight"] = value.Float(input.TargetWeight)
	}
	if input.TargetReps != 0 {
		payload["target_reps"] = value.Int(int64(input.TargetReps))
	}
	if input.TargetRIR != 0 {
		payload["target_rir"] = value.Int(int64(input.TargetRIR))
	}

	op := domain.Operation{
		Kind:            domain.OpAddChild,
		Target:          domain.Target{ExerciseID: input.ExerciseID},
		Payload:         payload,
		ClientTimestamp: time.Now().UTC(),
		Cause:           input.Cause,
		UISource:        input.UISource,
	}
	return s.enqueuePatch(ctx, &op, "add_set")
}

// RemoveSet removes a set; removing one already gone is a no-op end to end.
func (s *WorkoutSession) RemoveSet(ctx context.Context, exerciseID, setID string) (string, error) {
	op := domain.Operation{
		Kind:            domain.OpRemoveChild,
		Target:          domain.Target{ExerciseID: exerciseID, SetID: setID},
		ClientTimestamp: time.Now().UTC(),
	}
	return s.enqueuePatch(ctx, &op, "remove_set")
}

// AutofillInput is an AI-computed bulk patch for one exercise.
type AutofillInput struct {
	ExerciseID string
	Updates    []api.AutofillUpdate
	Additions  []api.AutofillAddition
}

// Autofill applies a bulk patch locally (one set_field per updated field,
// one add_child per addition) and submits it as a single autofillExercise
// call under one idempotency key.
func (s *WorkoutSession) Autofill(ctx context.Context, input AutofillInput) (string, error) {
	s.mu.Lock()
	if s.workout == nil {
		s.mu.Unlock()
		return "", ErrNoActiveWorkout
	}
	if s.workout.Exercise(input.ExerciseID) == nil {
		s.mu.Unlock()
		return "", domain.ErrExerciseNotFound
	}
	workoutID := s.workout.ID
	key := s.keys.Generate("autofill", workoutID, input.ExerciseID)
	now := time.Now().UTC()

	for _, update := range input.Updates {
		for field, val := range update.Fields {
			s.workout.ApplyLocally(domain.Operation{
				Kind:    domain.OpSetField,
				Target:  domain.Target{ExerciseID: input.ExerciseID, SetID: update.SetID},
				Field:   field,
				Payload: map[string]value.Value{"value": val},
			})
		}
	}
	for _, addition := range input.Additions {
		payload := map[string]value.Value{"set_id": value.String(addition.SetID)}
		for field, val := range addition.Fields {
			payload[field] = val
		}
		s.workout.ApplyLocally(domain.Operation{
			Kind:    domain.OpAddChild,
			Target:  domain.Target{ExerciseID: input.ExerciseID},
			Payload: payload,
		})
	}
	s.mu.Unlock()

	s.notify.publish(ChangeEvent{EntityID: workoutID, Kind: EventApplied, IdempotencyKey: key})

	req := api.AutofillExerciseRequest{
		WorkoutID:          workoutID,
		ExerciseInstanceID: input.ExerciseID,
		Updates:            input.Updates,
		Additions:          input.Additions,
		IdempotencyKey:     key,
		ClientTimestamp:    now,
	}
	s.dsp.enqueue(ctx, &pendingOp{
		key:      key,
		kind:     "autofill",
		entityID: workoutID,
		submit: func(ctx context.Context) error {
			resp, err := s.client.AutofillExercise(ctx, req)
			if err != nil {
				return err
			}
			s.reconcileTotals(resp.Totals)
			return nil
		},
	}, nil)
	return key, nil
}

// Complete flushes the queue, then finalizes (or discards) the aggregate on
// the authority and closes the session.
func (s *WorkoutSession) Complete(ctx context.Context, discard bool) (domain.Totals, error) {
	s.mu.Lock()
	if s.workout == nil {
		s.mu.Unlock()
		return domain.Totals{}, ErrNoActiveWorkout
	}
	workoutID := s.workout.ID
	s.mu.Unlock()

	if err := s.dsp.Flush(ctx); err != nil {
		return domain.Totals{}, fmt.Errorf("flush pending operations: %w", err)
	}

	resp, err := s.client.CompleteActiveWorkout(ctx, api.CompleteActiveWorkoutRequest{
		WorkoutID:       workoutID,
		Discard:         discard,
		IdempotencyKey:  s.keys.Generate("complete", workoutID),
		ClientTimestamp: time.Now().UTC(),
	})
	if err != nil {
		return domain.Totals{}, err
	}

	s.mu.Lock()
	s.workout = nil
	s.mu.Unlock()
	return resp.Totals, nil
}

// applyLocally validates preconditions, assigns the idempotency key, applies
// the operation to the projection, and publishes the applied event. Local
// apply always precedes any network activity.
func (s *WorkoutSession) applyLocally(op *domain.Operation, keyContext string) (string, error) {
	s.mu.Lock()
	if s.workout == nil {
		s.mu.Unlock()
		return "", ErrNoActiveWorkout
	}
	if err := s.workout.ValidateTarget(*op); err != nil {
		s.mu.Unlock()
		return "", err
	}
	workoutID := s.workout.ID
	op.IdempotencyKey = s.keys.Generate(keyContext, workoutID, op.Target.ExerciseID, op.Target.SetID)
	s.workout.ApplyLocally(*op)
	s.mu.Unlock()

	s.notify.publish(ChangeEvent{EntityID: workoutID, Kind: EventApplied, IdempotencyKey: op.IdempotencyKey})
	return workoutID, nil
}

// enqueuePatch routes one operation through the generic patch endpoint.
func (s *WorkoutSession) enqueuePatch(ctx context.Context, op *domain.Operation, keyContext string) (string, error) {
	workoutID, err := s.applyLocally(op, keyContext)
	if err != nil {
		return "", err
	}

	req := api.PatchActiveWorkoutRequest{
		WorkoutID:       workoutID,
		Ops:             []api.PatchOp{api.NewPatchOp(*op)},
		Cause:           op.Cause,
		UISource:        op.UISource,
		IdempotencyKey:  op.IdempotencyKey,
		ClientTimestamp: op.ClientTimestamp,
	}
	s.enqueue(ctx, workoutID, op, func(ctx context.Context) error {
		resp, err := s.client.PatchActiveWorkout(ctx, req)
		if err != nil {
			return err
		}
		s.reconcileTotals(resp.Totals)
		return nil
	})
	return op.IdempotencyKey, nil
}

func (s *WorkoutSession) enqueue(ctx context.Context, workoutID string, op *domain.Operation, submit func(context.Context) error) {
	var payload []byte
	if len(op.Payload) > 0 {
		var err error
		if payload, err = value.EncodeMap(op.Payload); err != nil {
			s.logger.Printf("encode journal payload for %s: %v", op.IdempotencyKey, err)
		}
	}
	s.dsp.enqueue(ctx, &pendingOp{
		key:      op.IdempotencyKey,
		kind:     op.Kind.String(),
		entityID: workoutID,
		submit:   submit,
	}, payload)
}

func (s *WorkoutSession) reconcileTotals(totals domain.Totals) {
	s.mu.Lock()
	if s.workout != nil {
		s.workout.ReconcileTotals(totals)
	}
	s.mu.Unlock()
}
