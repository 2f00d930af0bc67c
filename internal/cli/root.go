// Package cli wires the sync engine into the syncctl command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/auth"
	"example.com/syncengine/internal/config"
	"example.com/syncengine/internal/idempotency"
	"example.com/syncengine/internal/journal"
)

// RootOptions holds global flags plus the resolved configuration.
type RootOptions struct {
	Profile string
	Verbose bool
	Config  config.Config
}

// NewRootCommand creates the root command for syncctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Drive optimistic workout and canvas mutations against the authority",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if opts.Profile != "" {
				var err error
				cfg, err = cfg.ApplyProfile(opts.Profile)
				if err != nil {
					return err
				}
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "YAML profile overlaying the environment")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewWorkoutCommand(opts))
	cmd.AddCommand(NewCanvasCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

// tokenSource picks a JWT source when the credential parses as one, so
// expiry is caught before any request; opaque tokens fall back to static.
func (o *RootOptions) tokenSource() (auth.TokenSource, error) {
	token := o.Config.Token
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	if strings.Count(token, ".") == 2 {
		if src, err := auth.NewJWTTokenSource(token); err == nil {
			return src, nil
		}
	}
	return auth.NewStaticTokenSource(token), nil
}

func (o *RootOptions) client() (*api.Client, error) {
	tokens, err := o.tokenSource()
	if err != nil {
		return nil, err
	}
	clientOpts := []api.Option{
		api.WithMaxAttempts(o.Config.MaxAttempts),
		api.WithHTTPClient(&http.Client{Timeout: o.Config.HTTPTimeout}),
	}
	if !o.Verbose {
		clientOpts = append(clientOpts, api.WithLogger(log.New(io.Discard, "", 0)))
	}
	return api.NewClient(o.Config.BaseURL, tokens, clientOpts...), nil
}

func (o *RootOptions) keys() *idempotency.Keys {
	return idempotency.NewKeys(o.Config.IdempotencyTTL)
}

// openJournal returns nil when no journal path is configured; the engine
// treats a nil journal as a no-op.
func (o *RootOptions) openJournal() (*journal.Journal, error) {
	if o.Config.JournalPath == "" {
		return nil, nil
	}
	return journal.Open(o.Config.JournalPath)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
