package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"montage/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.DepsResults(preflight.CheckSystemDeps(cmd.Context(), cfg))...)

			lines := renderSectionHeader("Preflight", colorize)
			for _, result := range results {
				lines = append(lines, checkResultLine(result, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed := preflight.Failures(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, result := range failed {
					names = append(names, result.Name)
				}
				return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
