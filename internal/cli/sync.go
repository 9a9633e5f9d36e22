package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"typstlab/internal/lock"
	"typstlab/internal/state"
	"typstlab/internal/tools"
)

type syncResult struct {
	Tools    []tools.Resolution `json:"tools" yaml:"tools"`
	Shim     string             `json:"shim" yaml:"shim"`
	LastSync time.Time          `json:"last_sync" yaml:"last_sync"`
}

func newSyncCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Install every pinned tool and link the project shims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts, true)
			if err != nil {
				return err
			}
			defer s.Close()

			var result syncResult
			err = lock.With(cmd.Context(), s.paths.SyncLock, s.cfg.Install.LockTimeout, "sync", func() error {
				var err error
				result, err = runSync(cmd, opts, s)
				return err
			}, lock.WithLogger(s.logger), lock.OnWait(func(_ string, waited time.Duration, holder *lock.Holder) {
				if holder != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "waiting for another sync (pid %d) to finish...\n", holder.PID)
					return
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "waiting for another sync to finish...\n")
			}))
			if err != nil {
				return err
			}

			if opts.structured() {
				return writeStructured(cmd.OutOrStdout(), opts.Format, result)
			}
			out := cmd.OutOrStdout()
			for _, res := range result.Tools {
				fmt.Fprintf(out, "%-6s %-10s %-8s %s\n", res.Info.Tool, res.Info.Version, res.Info.Source, res.Info.Path)
			}
			fmt.Fprintf(out, "synced %s\n", s.paths.Root)
			return nil
		},
	}
}

// runSync must be called with the project's sync lock held.
func runSync(cmd *cobra.Command, opts *RootOptions, s *session) (syncResult, error) {
	reqs := s.requests(false)
	rows := make([]progressRow, 0, len(reqs))
	for _, req := range reqs {
		rows = append(rows, progressRow{tool: req.Tool, version: req.RequiredVersion})
	}

	var result syncResult
	err := withProgress(cmd, opts, "Syncing toolchain", rows, func(ctx context.Context, reporter tools.Reporter) error {
		tc, err := s.toolchain(reporter)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			res, err := tc.Ensure(ctx, req)
			if err != nil {
				return err
			}
			if reporter != nil && res.Kind == tools.Cached {
				reporter.Stage(req.Tool, req.RequiredVersion, tools.StageCached, res.Info.Path)
			}
			result.Tools = append(result.Tools, res)
		}
		return nil
	})
	if err != nil {
		return syncResult{}, err
	}

	def, _ := tools.Definition("typst")
	shim, _, err := tools.WriteShim(s.paths.Root, def, false)
	if err != nil {
		return syncResult{}, err
	}
	result.Shim = shim

	now := time.Now().UTC()
	if err := state.Update(cmd.Context(), s.paths.StateFile, func(rec *state.Record) error {
		rec.MarkSynced(now)
		return nil
	}); err != nil {
		return syncResult{}, fmt.Errorf("record sync: %w", err)
	}
	result.LastSync = now
	s.logger.Info().Int("tools", len(result.Tools)).Str("shim", shim).Msg("sync complete")
	return result, nil
}
