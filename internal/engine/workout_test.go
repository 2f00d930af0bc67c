package engine

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/auth"
	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/idempotency"
	"example.com/syncengine/internal/value"
)

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

// fakeWorkoutAuthority is an in-memory authority with idempotency-key dedup.
type fakeWorkoutAuthority struct {
	mu            sync.Mutex
	seenKeys      map[string]bool
	totals        domain.Totals
	logSetCalls   int
	completeCalls int
	patchKeys     []string
	failLogSets   int // respond 503 to this many logSet calls first
	rejectLog     bool
	blockLogSet   chan struct{} // when non-nil, logSet waits here first
}

func newFakeWorkoutAuthority() *fakeWorkoutAuthority {
	return &fakeWorkoutAuthority{seenKeys: make(map[string]bool)}
}

func (f *fakeWorkoutAuthority) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/startActiveWorkout", func(w http.ResponseWriter, r *http.Request) {
		var req api.StartActiveWorkoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := api.StartActiveWorkoutResponse{Success: true, WorkoutID: "w-1", UserID: "user-1"}
		for i, ex := range req.Exercises {
			view := api.ExerciseView{
				ExerciseInstanceID: "ex-" + string(rune('1'+i)),
				ExerciseID:         ex.ExerciseID,
				Name:               ex.Name,
			}
			for j, set := range ex.Sets {
				set.SetID = "set-" + string(rune('1'+j))
				view.Sets = append(view.Sets, set)
			}
			resp.Exercises = append(resp.Exercises, view)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/logSet", func(w http.ResponseWriter, r *http.Request) {
		if f.blockLogSet != nil {
			<-f.blockLogSet
		}

		var req api.LogSetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		defer f.mu.Unlock()
		f.logSetCalls++

		if f.failLogSets > 0 {
			f.failLogSets--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if f.rejectLog {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   map[string]string{"code": "invalid_target", "message": "unknown set"},
			})
			return
		}

		// Replay of a seen key re-acks without re-applying.
		if !f.seenKeys[req.IdempotencyKey] {
			f.seenKeys[req.IdempotencyKey] = true
			f.totals = domain.Totals{
				Sets:   f.totals.Sets + 1,
				Reps:   f.totals.Reps + req.Values.Reps,
				Volume: f.totals.Volume + float64(req.Values.Reps)*deref(req.Values.Weight),
			}
		}
		writeJSON(w, http.StatusOK, api.LogSetResponse{Success: true, Totals: f.totals})
	})

	mux.HandleFunc("/patchActiveWorkout", func(w http.ResponseWriter, r *http.Request) {
		var req api.PatchActiveWorkoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.seenKeys[req.IdempotencyKey] {
			f.seenKeys[req.IdempotencyKey] = true
			f.patchKeys = append(f.patchKeys, req.IdempotencyKey)
		}
		writeJSON(w, http.StatusOK, api.PatchActiveWorkoutResponse{Success: true, EventID: "evt-1", Totals: f.totals})
	})

	mux.HandleFunc("/completeActiveWorkout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.completeCalls++
		writeJSON(w, http.StatusOK, api.CompleteActiveWorkoutResponse{Success: true, Totals: f.totals})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (f *fakeWorkoutAuthority) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logSetCalls
}

func (f *fakeWorkoutAuthority) completes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls
}

func (f *fakeWorkoutAuthority) keyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seenKeys)
}

func (f *fakeWorkoutAuthority) patchOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.patchKeys...)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func newWorkoutSession(t *testing.T, baseURL string) *WorkoutSession {
	t.Helper()
	logger := log.New(testWriter{t}, "", 0)
	client := api.NewClient(baseURL, auth.NewStaticTokenSource("test-token"), api.WithLogger(logger))
	return NewWorkoutSession(client, idempotency.NewKeys(0), WithLogger(logger))
}

func startedSession(t *testing.T, baseURL string) *WorkoutSession {
	t.Helper()
	session := newWorkoutSession(t, baseURL)
	err := session.Start(context.Background(), StartWorkoutInput{
		Name: "Push Day",
		Exercises: []ExercisePlan{
			{ExerciseID: "bench-press", Name: "Bench Press", Sets: []SetPlan{{TargetReps: 10, TargetRIR: 2}}},
		},
	})
	require.NoError(t, err)
	return session
}

func TestEndToEndLogSetScenario(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	target := domain.Target{ExerciseID: "ex-1", SetID: "set-1"}
	require.Equal(t, domain.SetStatusPlanned, session.Workout().Set(target).Status)

	_, err := session.LogSet(ctx, LogSetInput{
		ExerciseID: "ex-1",
		SetID:      "set-1",
		Weight:     floatPtr(42.5),
		Reps:       8,
		RIR:        intPtr(1),
	})
	require.NoError(t, err)

	// The projection reflects the change before any sync cycle ran.
	set := session.Workout().Set(target)
	require.Equal(t, domain.SetStatusDone, set.Status)
	require.Equal(t, 8, set.Reps)
	require.Equal(t, 42.5, set.Weight)
	require.Equal(t, domain.Totals{}, session.Totals(), "totals are authority-derived only")

	require.NoError(t, session.SyncOnce(ctx))
	require.Equal(t, domain.Totals{Sets: 1, Reps: 8, Volume: 340}, session.Totals())
	require.Zero(t, session.Pending())
}

func TestLocalApplyPrecedesNetworkCompletion(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	authority.blockLogSet = make(chan struct{})
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Reps: 8})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- session.SyncOnce(ctx) }()

	// The network call is parked; the projection already changed.
	target := domain.Target{ExerciseID: "ex-1", SetID: "set-1"}
	require.Equal(t, domain.SetStatusDone, session.Workout().Set(target).Status)
	require.Equal(t, domain.Totals{}, session.Totals())

	close(authority.blockLogSet)
	require.NoError(t, <-done)
}

func TestIdempotentReplayYieldsSameTotals(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	authority.failLogSets = 1
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Weight: floatPtr(42.5), Reps: 8})
	require.NoError(t, err)
	require.NoError(t, session.SyncOnce(ctx))

	// First attempt got 503, the retry reused the same key: the authority
	// applied the intent exactly once.
	require.GreaterOrEqual(t, authority.calls(), 2)
	require.Equal(t, 1, authority.keyCount())
	require.Equal(t, domain.Totals{Sets: 1, Reps: 8, Volume: 340}, session.Totals())
}

func TestRejectedOperationIsDroppedNotRolledBack(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	authority.rejectLog = true
	server := authority.server(t)
	session := startedSession(t, server.URL)

	key, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Reps: 8})
	require.NoError(t, err)

	require.NoError(t, session.SyncOnce(ctx), "terminal rejections do not abort the drain")
	require.Zero(t, session.Pending(), "rejected operations leave the queue")

	// Optimistic state is never rolled back.
	set := session.Workout().Set(domain.Target{ExerciseID: "ex-1", SetID: "set-1"})
	require.Equal(t, domain.SetStatusDone, set.Status)

	rejected := drainUntil(t, session.Events(), EventRejected)
	require.Equal(t, key, rejected.IdempotencyKey)
	require.True(t, api.IsRejected(rejected.Err))
}

func TestTransientExhaustionKeepsOperationPending(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	authority.failLogSets = 100
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Reps: 8})
	require.NoError(t, err)

	require.Error(t, session.SyncOnce(ctx))
	require.Equal(t, 1, session.Pending(), "transient failure keeps the operation queued")

	// Local state is untouched by the failure: still optimistically done.
	set := session.Workout().Set(domain.Target{ExerciseID: "ex-1", SetID: "set-1"})
	require.Equal(t, domain.SetStatusDone, set.Status)

	failed := drainUntil(t, session.Events(), EventSyncFailed)
	require.Error(t, failed.Err)
}

func TestPreconditionFailuresNeverReachTheNetwork(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)

	session := newWorkoutSession(t, server.URL)
	_, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Reps: 8})
	require.ErrorIs(t, err, ErrNoActiveWorkout)

	session = startedSession(t, server.URL)
	_, err = session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "ghost", Reps: 8})
	require.ErrorIs(t, err, domain.ErrSetNotFound)

	_, err = session.PatchField(ctx, FieldPatchInput{ExerciseID: "ghost", SetID: "set-1", Field: "weight", Value: value.Float(50)})
	require.ErrorIs(t, err, domain.ErrExerciseNotFound)

	require.NoError(t, session.SyncOnce(ctx))
	require.Zero(t, authority.calls())
}

func TestPatchOpsDeliveredInSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	first, err := session.PatchField(ctx, FieldPatchInput{ExerciseID: "ex-1", SetID: "set-1", Field: "weight", Value: value.Float(60), Cause: "user_edit", UISource: "set_row"})
	require.NoError(t, err)
	second, err := session.AddSet(ctx, AddSetInput{ExerciseID: "ex-1", SetID: "set-2", TargetReps: 12})
	require.NoError(t, err)
	third, err := session.RemoveSet(ctx, "ex-1", "set-2")
	require.NoError(t, err)

	require.Equal(t, 3, session.Pending())
	require.NoError(t, session.SyncOnce(ctx))
	require.Equal(t, []string{first, second, third}, authority.patchOrder())
}

func TestAutofillAppliesBulkPatchLocally(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.Autofill(ctx, AutofillInput{
		ExerciseID: "ex-1",
		Updates: []api.AutofillUpdate{
			{SetID: "set-1", Fields: map[string]value.Value{"weight": value.Float(57.5)}},
		},
		Additions: []api.AutofillAddition{
			{SetID: "set-2", Fields: map[string]value.Value{"target_reps": value.Int(12)}},
		},
	})
	require.NoError(t, err)

	workout := session.Workout()
	require.Equal(t, 57.5, workout.Set(domain.Target{ExerciseID: "ex-1", SetID: "set-1"}).TargetWeight)
	require.Equal(t, 12, workout.Set(domain.Target{ExerciseID: "ex-1", SetID: "set-2"}).TargetReps)
}

func TestCompleteFlushesAndClosesSession(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Weight: floatPtr(42.5), Reps: 8})
	require.NoError(t, err)

	totals, err := session.Complete(ctx, false)
	require.NoError(t, err)
	require.Equal(t, domain.Totals{Sets: 1, Reps: 8, Volume: 340}, totals)
	require.Nil(t, session.Workout())

	_, err = session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Reps: 8})
	require.ErrorIs(t, err, ErrNoActiveWorkout)
}

func TestStartTwiceIsRejected(t *testing.T) {
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	err := session.Start(context.Background(), StartWorkoutInput{Name: "again"})
	require.ErrorIs(t, err, ErrWorkoutActive)
}

// drainUntil reads events until one of the wanted kind appears.
func TestCompleteWaitsForOperationClaimedByAnotherDrain(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)

	logger := log.New(testWriter{t}, "", 0)
	client := api.NewClient(server.URL, auth.NewStaticTokenSource("test-token"), api.WithLogger(logger))
	keys := idempotency.NewKeys(0)
	session := NewWorkoutSession(client, keys, WithLogger(logger))
	require.NoError(t, session.Start(ctx, StartWorkoutInput{
		Name: "Push Day",
		Exercises: []ExercisePlan{
			{ExerciseID: "bench-press", Name: "Bench Press", Sets: []SetPlan{{TargetReps: 10, TargetRIR: 2}}},
		},
	}))

	key, err := session.LogSet(ctx, LogSetInput{ExerciseID: "ex-1", SetID: "set-1", Weight: floatPtr(42.5), Reps: 8})
	require.NoError(t, err)

	// A concurrent drain holds the head operation's key.
	keys.Remember(key)

	done := make(chan error, 1)
	go func() {
		_, err := session.Complete(ctx, false)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("complete returned while the head operation was still claimed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	require.Zero(t, authority.completes(), "no completion before the queue is empty")

	keys.Forget(key)
	require.NoError(t, <-done)
	require.Equal(t, 1, authority.calls())
	require.Equal(t, 1, authority.completes())
	require.Zero(t, session.Pending())
}

func TestUnencodablePayloadKeepsOperationPending(t *testing.T) {
	ctx := context.Background()
	authority := newFakeWorkoutAuthority()
	server := authority.server(t)
	session := startedSession(t, server.URL)

	_, err := session.PatchField(ctx, FieldPatchInput{
		ExerciseID: "ex-1",
		SetID:      "set-1",
		Field:      "weight",
		Value:      value.Float(math.NaN()),
	})
	require.NoError(t, err, "local apply never fails")

	require.Error(t, session.SyncOnce(ctx))
	require.Equal(t, 1, session.Pending())
	require.Zero(t, authority.keyCount(), "nothing reached the authority")
}

func drainUntil(t *testing.T, events <-chan ChangeEvent, kind EventKind) ChangeEvent {
	t.Helper()
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		default:
			t.Fatalf("no %s event published", kind)
			return ChangeEvent{}
		}
	}
}
