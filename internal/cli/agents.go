package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	v1 "reelgate/api/v1"
)

// NewAgentsCmd creates the agents command.
func NewAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect specialist agents",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsSelectCmd())

	return cmd
}

func newAgentsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List specialist agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.AgentsListResponse
			if err := GetCLIContext(cmd).Client().Get(cmd.Context(), "/api/v1/agents", &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}

			w := newTable(out)
			fmt.Fprintln(w, "NAME\tTOOLS\tKEYWORDS\tDESCRIPTION")
			for _, a := range resp.Agents {
				name := string(a.Name)
				if a.Name == resp.Default {
					name += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					name, strings.Join(a.Tools, ","), strings.Join(a.Keywords, ","), a.Description)
			}
			w.Flush()
			fmt.Fprintln(out, "\n* default")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newAgentsSelectCmd() *cobra.Command {
	var req v1.SelectAgentRequest

	cmd := &cobra.Command{
		Use:   "select <prompt>",
		Short: "Show which specialist would handle a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = strings.Join(args, " ")

			var resp v1.SelectAgentResponse
			if err := GetCLIContext(cmd).Client().Post(cmd.Context(), "/api/v1/agents/select", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (tools: %s)\n", resp.Agent, strings.Join(resp.Tools, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&req.SegmentID, "segment", "", "segment id")
	return cmd
}
