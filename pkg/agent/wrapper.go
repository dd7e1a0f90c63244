// Package agent wraps individual agent executions. A Wrapper runs exactly
// one agent per invocation and always comes back with a well-formed
// AgentResponse: timeouts, remote failures, and panics are converted into
// failure responses instead of escaping to the dispatcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucia-home/lucia/pkg/a2a"
	"github.com/lucia-home/lucia/pkg/models"
)

// Defaults for Options.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultHistoryLimit = 20
)

// Options tunes one wrapper. The zero value uses the defaults above.
type Options struct {
	// Timeout bounds a single invocation, composed with the caller's
	// deadline (whichever fires first wins).
	Timeout time.Duration `yaml:"timeout"`

	// HistoryLimit caps the orchestration context history in turns;
	// oldest turns are trimmed first.
	HistoryLimit int `yaml:"history_limit"`
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	return o
}

// LocalAgent is an in-process agent. Handle receives the user turn and the
// agent's opaque thread handle from the previous turn of the same
// conversation (nil on the first turn) and returns the reply plus the handle
// to store for the next turn.
type LocalAgent interface {
	Handle(ctx context.Context, turn models.ChatTurn, thread models.Thread) (reply string, newThread models.Thread, err error)
}

// Func adapts a plain function to the LocalAgent interface.
type Func func(ctx context.Context, turn models.ChatTurn, thread models.Thread) (string, models.Thread, error)

// Handle implements LocalAgent.
func (f Func) Handle(ctx context.Context, turn models.ChatTurn, thread models.Thread) (string, models.Thread, error) {
	return f(ctx, turn, thread)
}

// Wrapper executes one agent, local or remote, never both.
type Wrapper struct {
	agentID   string
	local     LocalAgent
	card      models.AgentCard
	deliverer a2a.Deliverer
	opts      Options
}

// NewLocal builds a wrapper around an in-process agent.
func NewLocal(agentID string, local LocalAgent, opts Options) (*Wrapper, error) {
	if agentID == "" {
		return nil, errors.New("agent wrapper: agent id is required")
	}
	if local == nil {
		return nil, fmt.Errorf("agent wrapper %q: local agent is nil", agentID)
	}
	return &Wrapper{agentID: agentID, local: local, opts: opts.withDefaults()}, nil
}

// NewRemote builds a wrapper that forwards invocations to a remote agent
// via its card's endpoint. A remote card without a deliverer is a
// construction error.
func NewRemote(card models.AgentCard, deliverer a2a.Deliverer, opts Options) (*Wrapper, error) {
	if card.ID == "" {
		return nil, errors.New("agent wrapper: agent card has empty id")
	}
	if !card.IsRemote() {
		return nil, fmt.Errorf("agent wrapper %q: card %q is not a remote endpoint", card.ID, card.URLOrLocal)
	}
	if deliverer == nil {
		return nil, fmt.Errorf("agent wrapper %q: remote card requires a deliverer", card.ID)
	}
	return &Wrapper{agentID: card.ID, card: card, deliverer: deliverer, opts: opts.withDefaults()}, nil
}

// AgentID returns the id this wrapper is bound to.
func (w *Wrapper) AgentID() string {
	return w.agentID
}

type invocation struct {
	reply  string
	thread models.Thread
	err    error
}

// Invoke runs the agent once. taskID is forwarded on the remote path for
// trace continuity; empty when the request has no durable task.
//
// Every exit path produces an AgentResponse. Success appends the user and
// assistant turns to oc.History (trimmed to the history limit) and records
// this agent as the previous one.
func (w *Wrapper) Invoke(parent context.Context, turn models.ChatTurn, oc *models.OrchestrationContext, taskID string) models.AgentResponse {
	slog.Debug("Agent invoked", "agent_id", w.agentID, "remote", w.local == nil)
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, w.opts.Timeout)
	defer cancel()

	content, err := w.run(ctx, turn, oc, taskID)
	elapsed := elapsedMS(start)

	if err != nil {
		message := err.Error()
		// The caller's own deadline expiring also surfaces as
		// DeadlineExceeded; only blame the wrapper timeout when the caller
		// context is still live.
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			message = fmt.Sprintf("agent timed out after %s", w.opts.Timeout)
		}
		slog.Warn("Agent execution failed",
			"agent_id", w.agentID, "duration_ms", elapsed, "error", err)
		return models.AgentResponse{
			AgentID:      w.agentID,
			Success:      false,
			ErrorMessage: message,
			ExecutionMS:  elapsed,
		}
	}

	oc.AppendTurns(w.opts.HistoryLimit, turn, models.NewAssistantTurn(content))
	oc.PreviousAgentID = w.agentID

	slog.Debug("Agent execution completed",
		"agent_id", w.agentID, "duration_ms", elapsed)
	return models.AgentResponse{
		AgentID:     w.agentID,
		Content:     content,
		Success:     true,
		ExecutionMS: elapsed,
	}
}

func (w *Wrapper) run(ctx context.Context, turn models.ChatTurn, oc *models.OrchestrationContext, taskID string) (string, error) {
	if w.local != nil {
		return w.runLocal(ctx, turn, oc)
	}
	return w.runRemote(ctx, turn, oc, taskID)
}

// runLocal executes the in-process agent on its own goroutine so a handler
// that ignores its context cannot outlive the wrapper timeout. Thread
// handles are reused only within the conversation they were created for.
func (w *Wrapper) runLocal(ctx context.Context, turn models.ChatTurn, oc *models.OrchestrationContext) (string, error) {
	thread, _ := oc.ThreadFor(w.agentID)

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		reply, newThread, err := w.local.Handle(ctx, turn, thread)
		done <- invocation{reply: reply, thread: newThread, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		oc.SetThread(w.agentID, res.thread)
		return res.reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runRemote delivers the turn to the remote endpoint and interprets the
// answer. A returned task in completed, working, or input-required state is
// a successful transport; any other state is reported as a failure carrying
// the state name.
func (w *Wrapper) runRemote(ctx context.Context, turn models.ChatTurn, oc *models.OrchestrationContext, taskID string) (string, error) {
	result, err := w.deliverer.Deliver(ctx, a2a.DeliveryRequest{
		ContextID: oc.ConversationID,
		TaskID:    taskID,
		Message:   a2a.TextMessage(a2a.RoleUser, turn.Text),
		Endpoint:  w.card.URLOrLocal,
	})
	if err != nil {
		return "", err
	}

	switch {
	case result == nil, result.Task == nil && result.Message == nil:
		return "", errors.New("remote agent returned no response")
	case result.Task != nil:
		state := a2a.StateUnknown
		if result.Task.Status != nil {
			state = result.Task.Status.State
		}
		switch state {
		case a2a.StateCompleted, a2a.StateWorking, a2a.StateInputRequired:
			if msg := result.Task.LastAgentMessage(); msg != nil {
				return msg.Text(), nil
			}
			if result.Task.Status != nil && result.Task.Status.Message != nil {
				return result.Task.Status.Message.Text(), nil
			}
			return "", nil
		default:
			return "", fmt.Errorf("remote agent returned status %q", state)
		}
	default:
		return result.Message.Text(), nil
	}
}

func elapsedMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
