package credits

import (
	"context"
	"errors"

	"reelgate/internal/tools"
	"reelgate/pkg/logger"
)

// Refundable is implemented by tool payloads that can report a total
// failure without returning an error, such as a batch where every segment
// failed.
type Refundable interface {
	ShouldRefund() bool
}

// Guard charges for a gated tool: check, deduct, execute. The charge is
// refunded when execution fails or the payload asks for it.
type Guard struct {
	tools.Tool
	ledger Ledger
	op     OpType
}

// NewGuard wraps tool with credit accounting for op.
func NewGuard(tool tools.Tool, ledger Ledger, op OpType) *Guard {
	return &Guard{Tool: tool, ledger: ledger, op: op}
}

// Execute implements tools.Tool.
func (g *Guard) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	userID, _ := tools.UserIDFromContext(ctx)
	model, _ := args["model"].(string)

	check, err := g.ledger.Check(ctx, userID, g.op, model)
	if err != nil {
		return tools.ToolResult{}, err
	}
	if !check.HasEnough {
		return tools.ToolResult{}, &InsufficientCreditsError{Op: g.op, Required: check.Required, Balance: check.Balance}
	}

	txID, err := g.ledger.Deduct(ctx, userID, g.op, model)
	if err != nil {
		return tools.ToolResult{}, err
	}

	result, err := g.Tool.Execute(ctx, args)
	switch {
	case err != nil:
		g.refund(ctx, txID, err.Error())
	case refundable(result.Data):
		g.refund(ctx, txID, "no output produced")
	}
	return result, err
}

func refundable(data any) bool {
	r, ok := data.(Refundable)
	return ok && r.ShouldRefund()
}

func (g *Guard) refund(ctx context.Context, txID, reason string) {
	log := logger.Component("credits")
	// refund even if the run context is already cancelled
	if err := g.ledger.Refund(context.WithoutCancel(ctx), txID, reason); err != nil && !errors.Is(err, ErrUnknownTransaction) {
		log.Error().Err(err).Str("transaction_id", txID).Str("tool", g.Name()).Msg("refund failed")
		return
	}
	log.Info().Str("transaction_id", txID).Str("tool", g.Name()).Str("reason", reason).Msg("credits refunded")
}
