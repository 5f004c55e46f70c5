package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	v1 "reelgate/api/v1"
	"reelgate/internal/stream"
)

// Decision is the answer to one approval request.
type Decision struct {
	// Skip leaves the request pending for someone else to decide.
	Skip      bool
	Approved  bool
	ExtraArgs map[string]any
}

// Decider answers approval requests seen on a run stream.
type Decider func(ctx context.Context, req stream.ApprovalRequiredData) (Decision, error)

// RunOptions configures a streamed run.
type RunOptions struct {
	Request v1.RunStartRequest
	Decide  Decider
	Out     io.Writer
	JSON    bool
	Width   int
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		req         v1.RunStartRequest
		autoApprove bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Start an agent run and follow it",
		Long: `Start an agent run and stream its progress.

When the run pauses for approval, an interactive terminal is asked to
approve, reject or edit the call. Without a terminal the request stays
pending and can be decided with 'reelgate approvals decide'.`,
		Example: `  reelgate run "30s ad for a gentle face wash, bright studio look"
  reelgate run --project p1 --segment s2 "regenerate the hero shot"
  reelgate run --auto-approve "storyboard a product teaser"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			req.Prompt = strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts := RunOptions{
				Request: req,
				Out:     cmd.OutOrStdout(),
				JSON:    jsonOutput,
				Width:   terminalWidth(),
			}
			switch {
			case autoApprove:
				opts.Decide = approveAll
			case term.IsTerminal(int(os.Stdin.Fd())):
				opts.Decide = promptDecider(bufio.NewReader(os.Stdin), cmd.OutOrStdout())
			default:
				opts.Decide = leavePending(cmd.ErrOrStderr())
			}
			return StreamRun(ctx, cliCtx.Client(), opts)
		},
	}

	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&req.SegmentID, "segment", "", "segment id")
	cmd.Flags().StringVar(&req.UserID, "user", "", "acting user when auth is off")
	cmd.Flags().BoolVarP(&autoApprove, "auto-approve", "y", false, "approve every gated call")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print raw stream frames as JSON lines")

	return cmd
}

// StreamRun starts a run, prints its stream and answers approvals with
// opts.Decide. It returns an error if the run ends with an error message.
func StreamRun(ctx context.Context, client *APIClient, opts RunOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Decide == nil {
		opts.Decide = leavePending(io.Discard)
	}

	var runErr error
	runID, err := client.Stream(ctx, "/api/v1/runs", opts.Request, func(f StreamFrame) error {
		if opts.JSON {
			line, _ := json.Marshal(f)
			fmt.Fprintln(opts.Out, string(line))
		} else {
			printFrame(opts.Out, f, opts.Width)
		}

		switch f.Type {
		case stream.TypeApprovalRequired:
			var data stream.ApprovalRequiredData
			if err := json.Unmarshal(f.Data, &data); err != nil {
				return fmt.Errorf("decode approval request: %w", err)
			}
			return decide(ctx, client, opts, data)
		case stream.TypeError:
			var data stream.ErrorData
			_ = json.Unmarshal(f.Data, &data)
			runErr = fmt.Errorf("run failed: %s", data.Message)
		}
		return nil
	})
	if err != nil {
		if runID != "" {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		return err
	}
	return runErr
}

func decide(ctx context.Context, client *APIClient, opts RunOptions, data stream.ApprovalRequiredData) error {
	d, err := opts.Decide(ctx, data)
	if err != nil {
		return err
	}
	if d.Skip {
		return nil
	}

	var resp v1.DecideResponse
	body := v1.DecideRequest{Approved: d.Approved, ExtraArgs: d.ExtraArgs}
	if err := client.Post(ctx, "/api/v1/approvals/"+url.PathEscape(data.ApprovalID)+"/decide", body, &resp); err != nil {
		return fmt.Errorf("decide %s: %w", data.ApprovalID, err)
	}
	if !opts.JSON {
		fmt.Fprintf(opts.Out, "  %s\n", resp.Message)
	}
	return nil
}

func printFrame(w io.Writer, f StreamFrame, width int) {
	switch f.Type {
	case stream.TypeLog:
		var data stream.LogData
		_ = json.Unmarshal(f.Data, &data)
		fmt.Fprintf(w, "· %s\n", truncate(data.Message, width-2))

	case stream.TypeApprovalRequired:
		var data stream.ApprovalRequiredData
		_ = json.Unmarshal(f.Data, &data)
		fmt.Fprintf(w, "⏸ %s wants to call %s (approval %s)\n", data.AgentName, data.ToolName, data.ApprovalID)
		args, _ := json.MarshalIndent(data.Arguments, "  ", "  ")
		fmt.Fprintf(w, "  %s\n", args)

	case stream.TypeResult:
		var data stream.ResultData
		_ = json.Unmarshal(f.Data, &data)
		out, _ := json.Marshal(data.Output)
		fmt.Fprintf(w, "✓ %s: %s\n", data.ToolName, truncate(string(out), width-4-len(data.ToolName)))

	case stream.TypeError:
		var data stream.ErrorData
		_ = json.Unmarshal(f.Data, &data)
		fmt.Fprintf(w, "✗ %s\n", data.Message)

	case stream.TypeCompleted:
		var data stream.CompletedData
		_ = json.Unmarshal(f.Data, &data)
		fmt.Fprintln(w)
		fmt.Fprintln(w, data.FinalOutput)
	}
}

func approveAll(context.Context, stream.ApprovalRequiredData) (Decision, error) {
	return Decision{Approved: true}, nil
}

func leavePending(w io.Writer) Decider {
	return func(_ context.Context, req stream.ApprovalRequiredData) (Decision, error) {
		fmt.Fprintf(w, "  decide with: reelgate approvals decide %s --approve|--reject\n", req.ApprovalID)
		return Decision{Skip: true}, nil
	}
}

// promptDecider asks on in/out. Answers: y approves, n rejects, e approves
// with edited arguments entered as key=value lines.
func promptDecider(in *bufio.Reader, out io.Writer) Decider {
	return func(_ context.Context, req stream.ApprovalRequiredData) (Decision, error) {
		for {
			fmt.Fprintf(out, "  approve %s? [y]es / [n]o / [e]dit: ", req.ToolName)
			line, err := in.ReadString('\n')
			if err != nil && line == "" {
				return Decision{}, fmt.Errorf("failed to read input: %w", err)
			}

			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return Decision{Approved: true}, nil
			case "n", "no":
				return Decision{Approved: false}, nil
			case "e", "edit":
				extra, err := readExtraArgs(in, out)
				if err != nil {
					return Decision{}, err
				}
				return Decision{Approved: true, ExtraArgs: extra}, nil
			}
		}
	}
}

func readExtraArgs(in *bufio.Reader, out io.Writer) (map[string]any, error) {
	fmt.Fprintln(out, "  enter key=value per line, empty line to finish")
	extra := map[string]any{}
	for {
		fmt.Fprint(out, "  > ")
		line, err := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil && err != io.EOF {
				return nil, err
			}
			return extra, nil
		}

		key, value, perr := ParseExtraArg(line)
		if perr != nil {
			fmt.Fprintf(out, "  %v\n", perr)
		} else {
			extra[key] = value
		}
		if err != nil {
			return extra, nil
		}
	}
}

// ParseExtraArg parses key=value. The value is decoded as JSON when it is
// valid JSON and kept as a string otherwise.
func ParseExtraArg(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("expected key=value, got %q", s)
	}
	raw = strings.TrimSpace(raw)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return key, v, nil
	}
	return key, raw, nil
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	return 120
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 3 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
