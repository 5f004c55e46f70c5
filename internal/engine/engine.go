// Package engine drives agent runs: a reasoning loop over the model that
// executes tool calls, suspends on gated calls until a user decides, and
// reports everything through the run's event channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/capability"
	"reelgate/internal/provider"
	"reelgate/internal/stream"
	"reelgate/internal/tools"
	"reelgate/pkg/logger"
)

// ToolFactory builds the tool set bound to one run's capability token.
type ToolFactory func(token string) *tools.Registry

// Journal persists every message a run produces.
type Journal interface {
	AppendRunEvent(ctx context.Context, runID string, msg stream.Message) error
}

// Recorder receives run counters.
type Recorder interface {
	RunStarted(agent string)
	RunFinished(agent string, state State, elapsed time.Duration)
}

// Deps are the collaborators of an Engine. Journal and Recorder are optional.
type Deps struct {
	Provider  provider.Provider
	Catalog   *agents.Catalog
	Approvals *approval.Manager
	Streams   *stream.Registry
	Issuer    *capability.Issuer
	Tools     ToolFactory
	Journal   Journal
	Recorder  Recorder
}

// Engine starts and tracks runs.
type Engine struct {
	deps   Deps
	config Config
	runs   *tracker
	now    func() time.Time
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("engine: provider is required")
	case deps.Approvals == nil:
		return nil, errors.New("engine: approval manager is required")
	case deps.Issuer == nil:
		return nil, errors.New("engine: capability issuer is required")
	case deps.Tools == nil:
		return nil, errors.New("engine: tool factory is required")
	}
	if deps.Catalog == nil {
		deps.Catalog = agents.DefaultCatalog()
	}
	if deps.Streams == nil {
		deps.Streams = stream.NewRegistry()
	}
	return &Engine{
		deps:   deps,
		config: cfg.normalized(),
		runs:   newTracker(),
		now:    time.Now,
	}, nil
}

// Streams returns the registry holding open run channels.
func (e *Engine) Streams() *stream.Registry {
	return e.deps.Streams
}

// Status returns a snapshot of a run.
func (e *Engine) Status(runID string) (RunStatus, error) {
	s, ok := e.runs.get(runID)
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return s, nil
}

// Runs returns snapshots of all tracked runs.
func (e *Engine) Runs() []RunStatus {
	return e.runs.list()
}

// Prune forgets finished runs older than maxAge.
func (e *Engine) Prune(maxAge time.Duration) int {
	return e.runs.prune(e.now().Add(-maxAge))
}

// Start sets up a run and launches it. The run outlives ctx's cancellation:
// a client disconnect detaches the stream but never aborts the run.
func (e *Engine) Start(ctx context.Context, req RunRequest) (*Handle, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	runID := uuid.NewString()
	def, ok := e.deps.Catalog.Select(agents.TaskDescriptor{
		Prompt:    prompt,
		ProjectID: req.ProjectID,
		SegmentID: req.SegmentID,
	})
	if !ok {
		return nil, agents.ErrUnknownAgent
	}

	token, err := e.deps.Issuer.Mint(req.UserID, runID, req.ProjectID, capability.ScopeGenerate)
	if err != nil {
		return nil, fmt.Errorf("mint capability: %w", err)
	}
	toolset, err := e.deps.Tools(token).Subset(def.Tools)
	if err != nil {
		return nil, fmt.Errorf("tools for %s: %w", def.Name, err)
	}

	ch, err := e.deps.Streams.Open(runID)
	if err != nil {
		return nil, err
	}
	if e.deps.Journal != nil {
		ch.Observe(e.journal(runID))
	}

	rc := &RunContext{
		RunID:     runID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		SegmentID: req.SegmentID,
		Prompt:    prompt,
		Agent:     def,
		Tools:     toolset,
		Channel:   ch,
		StartedAt: e.now().UTC(),
		log: *logger.With(map[string]any{
			"component": "engine",
			"run_id":    runID,
			"agent":     string(def.Name),
		}),
	}
	e.runs.add(&RunStatus{
		ID:        runID,
		Agent:     string(def.Name),
		State:     StateRunning,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		SegmentID: req.SegmentID,
		StartedAt: rc.StartedAt,
	})
	if e.deps.Recorder != nil {
		e.deps.Recorder.RunStarted(string(def.Name))
	}

	rc.log.Info().
		Str("project_id", req.ProjectID).
		Int("tools", toolset.Len()).
		Msg("run started")

	go e.run(rc.attach(context.WithoutCancel(ctx)), rc)

	return &Handle{RunID: runID, Agent: def.Name, Channel: ch}, nil
}

func (e *Engine) journal(runID string) func(stream.Message) {
	return func(msg stream.Message) {
		if err := e.deps.Journal.AppendRunEvent(context.Background(), runID, msg); err != nil {
			log := logger.Component("engine")
			log.Warn().Err(err).Str("run_id", runID).Str("type", string(msg.Type)).Msg("journal append failed")
		}
	}
}

// run owns rc until the terminal message. Every exit path, panics included,
// emits exactly one terminal message and unregisters the channel.
func (e *Engine) run(ctx context.Context, rc *RunContext) {
	defer e.deps.Streams.Remove(rc.RunID)
	defer func() {
		if r := recover(); r != nil {
			rc.log.Error().Interface("panic", r).Msg("run panicked")
			e.finish(rc, "", fmt.Errorf("internal error: %v", r))
		}
	}()

	output, err := e.loop(ctx, rc)
	e.finish(rc, output, err)
}

func (e *Engine) finish(rc *RunContext, output string, err error) {
	log := rc.log
	finished := e.now().UTC()
	state := StateFinished

	if err != nil {
		state = StateFailed
		rf := fatal(rc.RunID, err)
		if emitErr := rc.Channel.Fail(rf); emitErr != nil {
			log.Debug().Err(emitErr).Msg("terminal message already sent")
		}
		log.Error().Err(rf.Cause).Msg("run failed")
	} else {
		if emitErr := rc.Channel.Complete(output); emitErr != nil {
			log.Debug().Err(emitErr).Msg("terminal message already sent")
		}
		log.Info().
			Int("iterations", rc.iterations).
			Int("interruptions", rc.interruptions).
			Msg("run finished")
	}

	e.runs.update(rc.RunID, func(s *RunStatus) {
		s.State = state
		s.PendingApprovalID = ""
		s.FinishedAt = &finished
		if err != nil {
			s.Error = err.Error()
		}
	})
	if e.deps.Recorder != nil {
		e.deps.Recorder.RunFinished(string(rc.Agent.Name), state, finished.Sub(rc.StartedAt))
	}
}

// loop runs reasoning rounds until the model answers without tool calls.
func (e *Engine) loop(ctx context.Context, rc *RunContext) (string, error) {
	ch := rc.Channel
	_ = ch.Log("Starting agent run...")

	providerTools, err := rc.Tools.ToProviderTools()
	if err != nil {
		return "", fmt.Errorf("tool schemas: %w", err)
	}

	rc.messages = []provider.Message{
		{Role: provider.RoleSystem, Content: rc.systemPrompt()},
		{Role: provider.RoleUser, Content: rc.Prompt},
	}
	model := rc.Agent.Model
	if model == "" {
		model = e.config.Model
	}

	_ = ch.Log("Agent is processing...")

	for rc.iterations < e.config.MaxIterations {
		rc.iterations++
		e.runs.update(rc.RunID, func(s *RunStatus) { s.Iterations = rc.iterations })

		resp, err := e.deps.Provider.Chat(ctx, provider.ChatRequest{
			Model:       model,
			Messages:    rc.messages,
			Tools:       providerTools,
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
			RunID:       rc.RunID,
		})
		if err != nil {
			return "", fmt.Errorf("reasoning model: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		rc.messages = append(rc.messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			content, err := e.handleCall(ctx, rc, call)
			if err != nil {
				return "", err
			}
			rc.messages = append(rc.messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	return "", ErrMaxIterations
}

// handleCall executes one tool call and returns what the model sees. A
// non-nil error ends the run.
func (e *Engine) handleCall(ctx context.Context, rc *RunContext, call provider.ToolCall) (string, error) {
	log := rc.log

	tool, ok := rc.Tools.Get(call.Name)
	if !ok {
		log.Warn().Str("tool", call.Name).Msg("model called unknown tool")
		return toolError(tools.NewToolNotFoundError(call.Name)), nil
	}

	args, err := tools.ParseArguments(call.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("unparseable tool arguments")
		return toolError(tools.NewInvalidArgsError(call.Name, "arguments are not a JSON object", err)), nil
	}

	if tool.NeedsApproval() {
		return e.interrupt(ctx, rc, call, args)
	}

	res, err := rc.Tools.Execute(ctx, call.Name, args)
	if err != nil {
		if tools.IsFatal(err) {
			return "", err
		}
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool failed")
		return toolError(err), nil
	}
	log.Debug().Str("tool", call.Name).Msg("tool executed")
	return res.Content, nil
}

// interrupt suspends the run on a gated call until it is decided, then acts
// on the decision and discards the request.
func (e *Engine) interrupt(ctx context.Context, rc *RunContext, call provider.ToolCall, args map[string]any) (string, error) {
	log := rc.log
	ch := rc.Channel

	req, err := e.deps.Approvals.Open(ctx, approval.OpenRequest{
		RunID:     rc.RunID,
		AgentName: string(rc.Agent.Name),
		ToolName:  call.Name,
		Arguments: args,
		Auth: approval.AuthContext{
			UserID:    rc.UserID,
			ProjectID: rc.ProjectID,
			SegmentID: rc.SegmentID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("open approval for %s: %w", call.Name, err)
	}

	rc.interruptions++
	e.runs.update(rc.RunID, func(s *RunStatus) {
		s.State = StateAwaitingApproval
		s.PendingApprovalID = req.ID
		s.Interruptions = rc.interruptions
	})

	_ = ch.Emit(stream.TypeApprovalRequired, stream.ApprovalRequiredData{
		ApprovalID: req.ID,
		ToolName:   req.ToolName,
		AgentName:  req.AgentName,
		Arguments:  req.Arguments,
	})

	outcome, err := e.deps.Approvals.Wait(ctx, req.ID)

	e.runs.update(rc.RunID, func(s *RunStatus) {
		s.State = StateRunning
		s.PendingApprovalID = ""
	})
	defer e.consume(rc, req.ID)

	if err != nil {
		return "", fmt.Errorf("approval %s for %s: %w", req.ID, call.Name, err)
	}

	switch {
	case outcome.TimedOut:
		_ = ch.Log(fmt.Sprintf("Approval for %s timed out. The call was not executed.", call.Name))
		return fmt.Sprintf("The user did not respond in time. %s was not executed.", call.Name), nil
	case !outcome.Approved:
		_ = ch.Log(fmt.Sprintf("User rejected %s. The call was not executed.", call.Name))
		return fmt.Sprintf("The user rejected this %s call. It was not executed; do not retry it unless asked.", call.Name), nil
	}

	log.Info().Str("approval_id", req.ID).Str("tool", call.Name).Msg("executing approved tool")

	res, err := rc.Tools.Execute(ctx, call.Name, outcome.Request.Arguments)
	if err != nil {
		if tools.IsFatal(err) {
			return "", err
		}
		_ = ch.Log(fmt.Sprintf("%s failed: %v", call.Name, err))
		return toolError(err), nil
	}

	output := res.Data
	if output == nil {
		output = res.Content
	}
	_ = ch.Emit(stream.TypeResult, stream.ResultData{
		ApprovalID: req.ID,
		ToolName:   call.Name,
		Output:     output,
	})
	return res.Content, nil
}

func (e *Engine) consume(rc *RunContext, approvalID string) {
	if err := e.deps.Approvals.Consume(context.Background(), approvalID); err != nil && !errors.Is(err, approval.ErrNotFound) {
		rc.log.Warn().Err(err).Str("approval_id", approvalID).Msg("consume approval")
	}
}

func toolError(err error) string {
	return "Error: " + err.Error()
}
