package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	v1 "reelgate/api/v1"
	"reelgate/internal/engine"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect agent runs",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsStatusCmd())
	cmd.AddCommand(newRunsLogCmd())
	cmd.AddCommand(newRunsHistoryCmd())
	cmd.AddCommand(newRunsApprovalsCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs tracked by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.RunsListResponse
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), "/api/v1/runs", &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp.Runs)
			}
			if len(resp.Runs) == 0 {
				fmt.Fprintln(out, "No runs.")
				return nil
			}

			w := newTable(out)
			fmt.Fprintln(w, "ID\tAGENT\tSTATE\tAPPROVALS\tSTARTED\tFINISHED")
			for _, r := range resp.Runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Agent, r.State, r.Interruptions, formatTime(r.StartedAt), formatTimePtr(r.FinishedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newRunsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status engine.RunStatus
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), "/api/v1/runs/"+url.PathEscape(args[0]), &status); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newRunsLogCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "log <id>",
		Short: "Replay the recorded stream of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.RunEventsResponse
			path := "/api/v1/runs/" + url.PathEscape(args[0]) + "/events"
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp.Events)
			}
			width := terminalWidth()
			for _, ev := range resp.Events {
				printFrame(out, StreamFrame{Type: ev.Type, Data: ev.Data, Timestamp: ev.CreatedAt}, width)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newRunsHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.RunHistoryResponse
			path := "/api/v1/runs/history?limit=" + strconv.Itoa(limit)
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Runs) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}

			w := newTable(out)
			fmt.Fprintln(w, "RUN\tEVENTS\tLAST\tSTARTED\tUPDATED")
			for _, r := range resp.Runs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					r.RunID, r.Events, r.LastType, formatTime(r.StartedAt), formatTime(r.UpdatedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func newRunsApprovalsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "approvals <id>",
		Short: "Show the approval audit of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.AuditResponse
			path := "/api/v1/runs/" + url.PathEscape(args[0]) + "/approvals"
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return printAudit(cmd, resp, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}
