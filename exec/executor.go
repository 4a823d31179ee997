package exec

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTION EXECUTOR - Order placement boundary
// ═══════════════════════════════════════════════════════════════════════════════

// Executor is the admission pipeline's order-placement boundary
type Executor interface {
	Execute(ctx context.Context, action string, context map[string]any) error
}

// ActionExecutor logs actions; in dry-run mode nothing is ever placed
type ActionExecutor struct {
	dryRun bool
}

// NewActionExecutor creates an executor
func NewActionExecutor(dryRun bool) *ActionExecutor {
	return &ActionExecutor{dryRun: dryRun}
}

// Execute handles one admitted action
func (e *ActionExecutor) Execute(ctx context.Context, action string, decision map[string]any) error {
	if e.dryRun {
		log.Info().Str("action", action).Interface("decision", decision).Msg("🧪 [DRY_RUN] action")
		return nil
	}

	// TODO: wire in real order-placement logic here.
	log.Info().Str("action", action).Interface("decision", decision).Msg("⚡ Executing action")
	return nil
}
