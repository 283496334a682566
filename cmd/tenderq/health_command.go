package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenderq/internal/preflight"
	"tenderq/internal/store"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, the work store, the transport, and system dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var targets preflight.Targets
			var extra []preflight.Result

			var opened store.Store
			s, err := store.Open(cmd.Context(), cfg)
			if err != nil {
				extra = append(extra, preflight.Result{Name: "Work store", Detail: err.Error()})
			} else {
				defer s.Close()
				targets.Store = s
				opened = s
			}

			t, err := ctx.openTransport(cmd.Context(), cfg.Worker.ID, opened)
			if err != nil {
				extra = append(extra, preflight.Result{Name: "Queue transport", Detail: err.Error()})
			} else {
				defer t.Close()
				targets.Transport = t
			}

			results := append(extra, preflight.RunAll(cmd.Context(), cfg, targets)...)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Health", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				switch {
				case !r.Passed && r.Optional:
					kind = statusWarn
				case !r.Passed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}
