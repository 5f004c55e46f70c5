package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	v1 "reelgate/api/v1"
	"reelgate/internal/cron"
)

// NewJobsCmd creates the jobs command.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger maintenance jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsRunCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.JobsListResponse
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), "/api/v1/jobs", &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No maintenance jobs.")
				return nil
			}

			w := newTable(out)
			fmt.Fprintln(w, "NAME\tNEXT RUN\tLAST RUN\tRESULT")
			for _, j := range resp.Jobs {
				last, result := "-", "-"
				if j.LastRun != nil {
					last = formatTime(j.LastRun.StartedAt)
					result = "ok"
					if !j.LastRun.Successful {
						result = "failed: " + j.LastRun.Error
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.Name, formatTimePtr(j.NextRun), last, result)
			}
			return w.Flush()
		},
	}
}

func newJobsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run a maintenance job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exec cron.Execution
			path := "/api/v1/jobs/" + url.PathEscape(args[0]) + "/run"
			if err := GetCLIContext(cmd).Client().Post(cmd.Context(), path, nil, &exec); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !exec.Successful {
				return fmt.Errorf("job %s failed after %d attempts: %s", exec.Name, exec.Attempts, exec.Error)
			}
			fmt.Fprintf(out, "✓ %s finished in %s\n", exec.Name, exec.Duration)
			return nil
		},
	}
}
