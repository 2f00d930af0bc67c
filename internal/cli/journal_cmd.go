package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"example.com/syncengine/internal/journal"
)

// NewJournalCommand groups the journal subcommands.
func NewJournalCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local operation journal",
	}
	cmd.AddCommand(newJournalLsCommand(opts))
	return cmd
}

func newJournalLsCommand(opts *RootOptions) *cobra.Command {
	var (
		entityID string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List journaled operations, pending ones by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config.JournalPath == "" {
				return errors.New("no journal configured (set SYNC_JOURNAL_PATH or journal_path in the profile)")
			}
			jnl, err := journal.Open(opts.Config.JournalPath)
			if err != nil {
				return err
			}
			defer jnl.Close()

			var entries []journal.Entry
			switch {
			case entityID != "":
				entries, err = jnl.ByEntity(cmd.Context(), entityID)
			case all:
				entries, err = jnl.All(cmd.Context())
			default:
				entries, err = jnl.Pending(cmd.Context())
			}
			if err != nil {
				return err
			}

			type row struct {
				IdempotencyKey string         `json:"idempotency_key"`
				EntityID       string         `json:"entity_id"`
				Kind           string         `json:"kind"`
				Status         journal.Status `json:"status"`
				Reason         string         `json:"reason,omitempty"`
				CreatedAt      string         `json:"created_at"`
			}
			rows := make([]row, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, row{
					IdempotencyKey: e.IdempotencyKey,
					EntityID:       e.EntityID,
					Kind:           e.Kind,
					Status:         e.Status,
					Reason:         e.Reason,
					CreatedAt:      e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				})
			}
			return printJSON(cmd, rows)
		},
	}

	cmd.Flags().StringVar(&entityID, "entity", "", "filter by entity id")
	cmd.Flags().BoolVar(&all, "all", false, "include acknowledged and failed rows")
	return cmd
}
