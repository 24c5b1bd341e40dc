package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"montage/internal/api"
	"montage/internal/queueaccess"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateRunRequest
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "create --title TITLE CLIP [CLIP...]",
		Short: "Submit a new run from one or more video clips",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := resolveClipRefs(args)
			if err != nil {
				return err
			}
			req.VideoRefs = refs
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				resp, err := access.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created run %s (%d clips)\n", resp.Run.ID, len(refs))
				fmt.Fprintf(out, "Queued %s task %s\n", resp.Task.Stage, resp.Task.ID)
				printLocalNote(cmd, access)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Run title")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "Listing description used for the narration script")
	cmd.Flags().StringVarP(&req.Style, "style", "s", "", "Narration style")
	cmd.Flags().StringVar(&req.BGMRef, "bgm", "", "Background music asset id; selected from the catalog when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// resolveClipRefs makes local paths absolute so the daemon can read them from
// any working directory. URLs pass through.
func resolveClipRefs(args []string) ([]string, error) {
	refs := make([]string, 0, len(args))
	for _, arg := range args {
		ref := strings.TrimSpace(arg)
		if ref == "" {
			return nil, errors.New("clip reference must not be empty")
		}
		if !strings.Contains(ref, "://") {
			abs, err := filepath.Abs(ref)
			if err != nil {
				return nil, fmt.Errorf("resolve clip %q: %w", ref, err)
			}
			ref = abs
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				runs, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					if runs == nil {
						runs = []api.Run{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Created", "Video"},
					buildRunListRows(runs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var fullLog bool

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run with its segments and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				run, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderRunDetail(*run, fullLog))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&fullLog, "log", false, "Print the full failure log")
	return cmd
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve RUN_ID",
		Short: "Release a run waiting in review to the script stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				task, err := access.Approve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved run %s; queued %s task %s\n", args[0], task.Stage, task.ID)
				printLocalNote(cmd, access)
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry RUN_ID",
		Short: "Resume a failed run from the stage that failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				task, err := access.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying run %s from %s (task %s)\n", args[0], task.Stage, task.ID)
				printLocalNote(cmd, access)
				return nil
			})
		},
	}
}

func printLocalNote(cmd *cobra.Command, access queueaccess.Access) {
	if access.Remote() {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Daemon not reachable; the task runs once `montage daemon` starts")
}
