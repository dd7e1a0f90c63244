// Package orchestrator contains the request pipeline: dispatching a routing
// decision across agent wrappers, aggregating their responses, and the
// engine that owns one request end-to-end.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/lucia-home/lucia/pkg/agent"
	"github.com/lucia-home/lucia/pkg/models"
)

// Dispatch executes a routing decision against the wrapper map and returns
// the responses in execution order.
//
// Agents run strictly sequentially: later agents may depend on side effects
// of earlier ones, and each sees the context mutations of its predecessors.
// A failed agent does not stop the sequence; its wrapper already returned a
// failure response. Cancellation does: a canceled invocation yields no
// response, and the accumulated responses are returned with ctx.Err().
//
// Ids without a wrapper are skipped silently. observe, when non-nil, is
// called once per produced response.
func Dispatch(ctx context.Context, decision models.RoutingDecision, wrappers map[string]*agent.Wrapper,
	turn models.ChatTurn, oc *models.OrchestrationContext, taskID string,
	observe func(models.AgentResponse)) ([]models.AgentResponse, error) {

	ids := make([]string, 0, 1+len(decision.AdditionalAgentIDs))
	ids = append(ids, decision.PrimaryAgentID)
	ids = append(ids, decision.AdditionalAgentIDs...)

	responses := make([]models.AgentResponse, 0, len(ids))
	for _, id := range ids {
		wrapper, ok := wrappers[id]
		if !ok {
			slog.Debug("No wrapper for routed agent, skipping", "agent_id", id)
			continue
		}
		if err := ctx.Err(); err != nil {
			return responses, err
		}

		response := wrapper.Invoke(ctx, turn, oc, taskID)
		if err := ctx.Err(); err != nil {
			// Canceled mid-invocation: the partial result is discarded.
			return responses, err
		}

		responses = append(responses, response)
		if observe != nil {
			observe(response)
		}
	}
	return responses, nil
}
