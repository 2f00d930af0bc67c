package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/engine"
	"example.com/syncengine/internal/value"
)

// NewWorkoutCommand groups the active-workout subcommands.
func NewWorkoutCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workout",
		Short: "Start, mutate, and complete an active workout",
	}
	cmd.AddCommand(newWorkoutStartCommand(opts))
	cmd.AddCommand(newWorkoutLogSetCommand(opts))
	cmd.AddCommand(newWorkoutPatchCommand(opts))
	cmd.AddCommand(newWorkoutCompleteCommand(opts))
	return cmd
}

// workoutPlan is the YAML shape consumed by `workout start`.
type workoutPlan struct {
	Name      string `yaml:"name"`
	Exercises []struct {
		ExerciseID string `yaml:"exercise_id"`
		Name       string `yaml:"name"`
		Sets       []struct {
			TargetWeight float64 `yaml:"target_weight"`
			TargetReps   int     `yaml:"target_reps"`
			TargetRIR    int     `yaml:"target_rir"`
		} `yaml:"sets"`
	} `yaml:"exercises"`
}

func newWorkoutStartCommand(opts *RootOptions) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create an active workout from a YAML plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(planPath)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			var plan workoutPlan
			if err := yaml.Unmarshal(raw, &plan); err != nil {
				return fmt.Errorf("parse plan %s: %w", planPath, err)
			}

			client, err := opts.client()
			if err != nil {
				return err
			}
			jnl, err := opts.openJournal()
			if err != nil {
				return err
			}
			defer jnl.Close()

			session := engine.NewWorkoutSession(client, opts.keys(), engine.WithJournal(jnl))
			input := engine.StartWorkoutInput{Name: plan.Name}
			for _, ex := range plan.Exercises {
				exPlan := engine.ExercisePlan{ExerciseID: ex.ExerciseID, Name: ex.Name}
				for _, set := range ex.Sets {
					exPlan.Sets = append(exPlan.Sets, engine.SetPlan{
						TargetWeight: set.TargetWeight,
						TargetReps:   set.TargetReps,
						TargetRIR:    set.TargetRIR,
					})
				}
				input.Exercises = append(input.Exercises, exPlan)
			}
			if err := session.Start(cmd.Context(), input); err != nil {
				return err
			}

			workout := session.Workout()
			out := map[string]interface{}{
				"workout_id": workout.ID,
				"user_id":    workout.UserID,
				"exercises":  len(workout.Exercises),
			}
			return printJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path to the workout plan YAML (required)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newWorkoutLogSetCommand(opts *RootOptions) *cobra.Command {
	var (
		workoutID  string
		exerciseID string
		setID      string
		weight     float64
		reps       int
		rir        int
		isFailure  bool
	)

	cmd := &cobra.Command{
		Use:   "log-set",
		Short: "Record a completed set on an active workout",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			req := api.LogSetRequest{
				WorkoutID:          workoutID,
				ExerciseInstanceID: exerciseID,
				SetID:              setID,
				Values:             api.SetValues{Reps: reps},
				IsFailure:          isFailure,
				IdempotencyKey:     opts.keys().Generate("log_set", workoutID, exerciseID, setID),
				ClientTimestamp:    time.Now().UTC(),
			}
			if cmd.Flags().Changed("weight") {
				req.Values.Weight = &weight
			}
			if cmd.Flags().Changed("rir") {
				req.Values.RIR = &rir
			}

			resp, err := client.LogSet(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Totals)
		},
	}

	cmd.Flags().StringVar(&workoutID, "workout", "", "active workout id (required)")
	cmd.Flags().StringVar(&exerciseID, "exercise", "", "exercise instance id (required)")
	cmd.Flags().StringVar(&setID, "set", "", "set id (required)")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight lifted")
	cmd.Flags().IntVar(&reps, "reps", 0, "reps performed (required)")
	cmd.Flags().IntVar(&rir, "rir", 0, "reps in reserve")
	cmd.Flags().BoolVar(&isFailure, "failure", false, "set taken to failure")
	_ = cmd.MarkFlagRequired("workout")
	_ = cmd.MarkFlagRequired("exercise")
	_ = cmd.MarkFlagRequired("set")
	_ = cmd.MarkFlagRequired("reps")
	return cmd
}

func newWorkoutPatchCommand(opts *RootOptions) *cobra.Command {
	var (
		workoutID  string
		exerciseID string
		setID      string
		opKind     string
		field      string
		rawValue   string
		cause      string
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply one patch operation to an active workout",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseOpKind(opKind)
			if err != nil {
				return err
			}

			op := domain.Operation{
				Kind:            kind,
				Target:          domain.Target{ExerciseID: exerciseID, SetID: setID},
				ClientTimestamp: time.Now().UTC(),
				Cause:           cause,
				UISource:        "cli",
			}
			switch kind {
			case domain.OpSetField:
				if field == "" {
					return fmt.Errorf("set_field requires --field")
				}
				op.Field = field
				op.Payload = map[string]value.Value{"value": parseScalar(rawValue)}
			case domain.OpAddChild:
				op.Target.SetID = ""
				op.Payload = map[string]value.Value{"set_id": value.String(setID)}
			case domain.OpRemoveChild:
			case domain.OpLogCompletion:
				return fmt.Errorf("use `workout log-set` for completions")
			}
			op.IdempotencyKey = opts.keys().Generate("patch", workoutID, exerciseID, setID)

			client, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := client.PatchActiveWorkout(cmd.Context(), api.PatchActiveWorkoutRequest{
				WorkoutID:       workoutID,
				Ops:             []api.PatchOp{api.NewPatchOp(op)},
				Cause:           cause,
				UISource:        "cli",
				IdempotencyKey:  op.IdempotencyKey,
				ClientTimestamp: op.ClientTimestamp,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Totals)
		},
	}

	cmd.Flags().StringVar(&workoutID, "workout", "", "active workout id (required)")
	cmd.Flags().StringVar(&exerciseID, "exercise", "", "exercise instance id (required)")
	cmd.Flags().StringVar(&setID, "set", "", "set id")
	cmd.Flags().StringVar(&opKind, "op", "set_field", "operation kind (set_field|add_child|remove_child)")
	cmd.Flags().StringVar(&field, "field", "", "field name for set_field")
	cmd.Flags().StringVar(&rawValue, "value", "", "field value for set_field")
	cmd.Flags().StringVar(&cause, "cause", "manual", "provenance tag")
	_ = cmd.MarkFlagRequired("workout")
	_ = cmd.MarkFlagRequired("exercise")
	return cmd
}

func newWorkoutCompleteCommand(opts *RootOptions) *cobra.Command {
	var (
		workoutID string
		discard   bool
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Finalize or discard an active workout",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := client.CompleteActiveWorkout(cmd.Context(), api.CompleteActiveWorkoutRequest{
				WorkoutID:       workoutID,
				Discard:         discard,
				IdempotencyKey:  opts.keys().Generate("complete", workoutID),
				ClientTimestamp: time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Totals)
		},
	}

	cmd.Flags().StringVar(&workoutID, "workout", "", "active workout id (required)")
	cmd.Flags().BoolVar(&discard, "discard", false, "discard instead of finalizing")
	_ = cmd.MarkFlagRequired("workout")
	return cmd
}

func parseOpKind(raw string) (domain.OpKind, error) {
	switch raw {
	case "set_field":
		return domain.OpSetField, nil
	case "add_child":
		return domain.OpAddChild, nil
	case "remove_child":
		return domain.OpRemoveChild, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", raw)
	}
}

// parseScalar maps a flag string onto the narrowest matching payload value.
func parseScalar(raw string) value.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return value.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return value.Float(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return value.Bool(b)
	}
	return value.String(raw)
}
