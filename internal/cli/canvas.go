package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/engine"
	"example.com/syncengine/internal/value"
)

// NewCanvasCommand groups the canvas subcommands.
func NewCanvasCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "Bootstrap a canvas and submit version-guarded actions",
	}
	cmd.AddCommand(newCanvasBootstrapCommand(opts))
	cmd.AddCommand(newCanvasActionCommand(opts))
	return cmd
}

func newCanvasBootstrapCommand(opts *RootOptions) *cobra.Command {
	var purpose string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a canvas aggregate on the authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			session := engine.NewCanvasSession(client, opts.keys(), opts.Config.UserID)
			if err := session.Bootstrap(cmd.Context(), opts.Config.UserID, purpose); err != nil {
				return err
			}
			if err := session.Refresh(cmd.Context()); err != nil {
				return err
			}

			return printJSON(cmd, map[string]interface{}{
				"canvas_id": session.Canvas().ID,
				"version":   session.Version(),
			})
		},
	}

	cmd.Flags().StringVar(&purpose, "purpose", "", "what the canvas is for")
	return cmd
}

func newCanvasActionCommand(opts *RootOptions) *cobra.Command {
	var (
		canvasID      string
		actionType    string
		cardID        string
		payloadPairs  []string
		unconditional bool
	)

	cmd := &cobra.Command{
		Use:   "action",
		Short: "Apply one action to an existing canvas",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseActionType(actionType)
			if err != nil {
				return err
			}
			payload, err := parsePayload(payloadPairs)
			if err != nil {
				return err
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

			session := engine.NewCanvasSession(client, opts.keys(), opts.Config.UserID, engine.WithJournal(jnl))
			if err := session.Attach(cmd.Context(), canvasID); err != nil {
				return err
			}

			key, err := session.Do(cmd.Context(), engine.ActionInput{
				Type:          parsed,
				CardID:        cardID,
				Payload:       payload,
				Unconditional: unconditional,
			})
			if err != nil {
				return err
			}
			if err := session.SyncOnce(cmd.Context()); err != nil {
				return err
			}

			out := map[string]interface{}{
				"idempotency_key": key,
				"version":         session.Version(),
				"pending":         session.Pending(),
			}
			for _, ev := range drained(session.Events()) {
				if ev.Kind == engine.EventConflict || ev.Kind == engine.EventRejected {
					out["rejected"] = string(ev.Kind)
					if ev.Err != nil {
						out["reason"] = ev.Err.Error()
					}
				}
			}
			return printJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&canvasID, "canvas", "", "canvas id (required)")
	cmd.Flags().StringVar(&actionType, "type", "", "action type, e.g. ACCEPT_PROPOSAL (required)")
	cmd.Flags().StringVar(&cardID, "card", "", "card id the action targets")
	cmd.Flags().StringArrayVar(&payloadPairs, "payload", nil, "payload entry as key=value, repeatable")
	cmd.Flags().BoolVar(&unconditional, "unconditional", false, "skip the expected_version precondition")
	_ = cmd.MarkFlagRequired("canvas")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func parsePayload(pairs []string) (map[string]value.Value, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload := make(map[string]value.Value, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("payload entry %q is not key=value", pair)
		}
		payload[key] = parseScalar(raw)
	}
	return payload, nil
}

// drained consumes whatever events are already buffered without blocking on
// future ones.
func drained(events <-chan engine.ChangeEvent) []engine.ChangeEvent {
	var out []engine.ChangeEvent
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
