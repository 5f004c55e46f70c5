package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	v1 "reelgate/api/v1"
	"reelgate/internal/approval"
)

// NewApprovalsCmd creates the approvals command.
func NewApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "approvals",
		Aliases: []string{"approval", "ap"},
		Short:   "Inspect and decide pending approvals",
	}

	cmd.AddCommand(newApprovalsListCmd())
	cmd.AddCommand(newApprovalsGetCmd())
	cmd.AddCommand(newApprovalsDecideCmd())
	cmd.AddCommand(newApprovalsCleanupCmd())
	cmd.AddCommand(newApprovalsHistoryCmd())

	return cmd
}

func newApprovalsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			var resp v1.ApprovalsListResponse
			if err := cliCtx.Client().Get(cmd.Context(), "/api/v1/approvals", &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp.Approvals)
			}
			if resp.Count == 0 {
				fmt.Fprintln(out, "No pending approvals.")
				return nil
			}

			w := newTable(out)
			fmt.Fprintln(w, "ID\tTOOL\tAGENT\tRUN\tUSER\tCREATED")
			for _, a := range resp.Approvals {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.ToolName, a.AgentName, a.RunID, a.AuthContext.UserID, formatTime(a.CreatedAt))
			}
			w.Flush()
			fmt.Fprintf(out, "\nTotal: %d pending\n", resp.Count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newApprovalsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req approval.Request
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), "/api/v1/approvals/"+url.PathEscape(args[0]), &req); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}
}

func newApprovalsDecideCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		extra   []string
	)

	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Approve or reject a pending approval",
		Example: `  reelgate approvals decide 6f1c... --approve
  reelgate approvals decide 6f1c... --approve --arg style=noir --arg duration=8
  reelgate approvals decide 6f1c... --reject`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return errors.New("exactly one of --approve or --reject is required")
			}
			if reject && len(extra) > 0 {
				return errors.New("--arg only applies to --approve")
			}

			body := v1.DecideRequest{Approved: approve}
			if len(extra) > 0 {
				body.ExtraArgs = make(map[string]any, len(extra))
				for _, s := range extra {
					k, v, err := ParseExtraArg(s)
					if err != nil {
						return err
					}
					body.ExtraArgs[k] = v
				}
			}

			var resp v1.DecideResponse
			path := "/api/v1/approvals/" + url.PathEscape(args[0]) + "/decide"
			if err := GetCLIContext(cmd).Client().Post(cmd.Context(), path, body, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "approve the call")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the call")
	cmd.Flags().StringArrayVar(&extra, "arg", nil, "override an argument (key=value, repeatable)")
	return cmd
}

func newApprovalsCleanupCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale approvals",
		Long: `Remove approvals older than --max-age. Runs still waiting on them
fail as expired. Without --max-age the server default applies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxAge < 0 {
				return errors.New("--max-age must not be negative")
			}
			path := "/api/v1/approvals/cleanup"
			if cmd.Flags().Changed("max-age") {
				path += "?maxAgeHours=" + strconv.FormatFloat(maxAge.Hours(), 'f', -1, 64)
			}

			var resp v1.CleanupResponse
			if err := GetCLIContext(cmd).Client().Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale approvals\n", resp.Removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "age threshold, e.g. 2h")
	return cmd
}

func newApprovalsHistoryCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of an approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.AuditResponse
			path := "/api/v1/approvals/" + url.PathEscape(args[0]) + "/history"
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return printAudit(cmd, resp, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func printAudit(cmd *cobra.Command, resp v1.AuditResponse, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, resp.Entries)
	}
	if len(resp.Entries) == 0 {
		fmt.Fprintln(out, "No audit records.")
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "TIME\tAPPROVAL\tEVENT\tTOOL\tSTATUS\tUSER\tREASON")
	for _, e := range resp.Entries {
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(e.CreatedAt), e.ApprovalID, e.Event, e.ToolName, e.Status, e.UserID, reason)
	}
	return w.Flush()
}
