package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lucia-home/lucia/pkg/a2a"
	"github.com/lucia-home/lucia/pkg/agent"
	"github.com/lucia-home/lucia/pkg/events"
	"github.com/lucia-home/lucia/pkg/llm"
	"github.com/lucia-home/lucia/pkg/models"
	"github.com/lucia-home/lucia/pkg/registry"
	"github.com/lucia-home/lucia/pkg/router"
	"github.com/lucia-home/lucia/pkg/taskstore"
)

// GracefulErrorReply is returned to the user when the pipeline fails
// internally. The failure itself goes to the observer stream and the log.
const GracefulErrorReply = "I encountered an issue processing your request."

// topicLimit caps the conversation topic recorded in task metadata.
const topicLimit = 100

// cancelWriteTimeout bounds the best-effort canceled-status write after the
// request context is already gone.
const cancelWriteTimeout = 2 * time.Second

// Metadata keys maintained on the task for routing recaps.
const (
	metaLocation       = "location"
	metaPreviousAgents = "previousAgents"
	metaTopic          = "conversationTopic"
)

// Config wires an Engine. Registry and Clients are required; a nil Store
// disables persistence, a nil Bus gets a private one.
type Config struct {
	Store     *taskstore.Store
	Bus       *events.Bus
	Registry  *registry.Registry
	Clients   llm.Clients
	Deliverer a2a.Deliverer

	// LocalAgents maps agent id to its in-process implementation. Registry
	// cards without a local implementation must be remote.
	LocalAgents map[string]agent.LocalAgent

	RouterOptions     router.Options
	WrapperOptions    agent.Options
	AggregatorOptions AggregatorOptions
	SessionCache      SessionCacheOptions
}

// Engine owns requests end-to-end: task resolution, routing, dispatch,
// aggregation, persistence, and observer publication.
type Engine struct {
	store     *taskstore.Store
	bus       *events.Bus
	registry  *registry.Registry
	router    *router.Router
	deliverer a2a.Deliverer
	locals    map[string]agent.LocalAgent
	fallback  *agent.GeneralAssistant

	wrapperOpts  agent.Options
	aggOpts      AggregatorOptions
	sessions     *sessionCache
	historyLimit int

	clarificationID string
	fallbackID      string
}

// New builds an Engine from its collaborators.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if len(cfg.Clients) == 0 {
		return nil, errors.New("engine: at least one chat client is required")
	}

	rtr, err := router.New(cfg.Clients, cfg.Registry, cfg.RouterOptions)
	if err != nil {
		return nil, err
	}

	client, err := cfg.Clients.Get(cfg.RouterOptions.ChatClientKey)
	if err != nil {
		return nil, fmt.Errorf("engine chat client: %w", err)
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus(0)
	}

	clarificationID := cfg.RouterOptions.ClarificationAgentID
	if clarificationID == "" {
		clarificationID = router.DefaultClarificationAgentID
	}
	fallbackID := cfg.RouterOptions.FallbackAgentID
	if fallbackID == "" {
		fallbackID = router.DefaultFallbackAgentID
	}

	return &Engine{
		store:           cfg.Store,
		bus:             bus,
		registry:        cfg.Registry,
		router:          rtr,
		deliverer:       cfg.Deliverer,
		locals:          cfg.LocalAgents,
		fallback:        agent.NewGeneralAssistant(client, ""),
		wrapperOpts:     cfg.WrapperOptions,
		aggOpts:         cfg.AggregatorOptions,
		sessions:        newSessionCache(cfg.SessionCache.ttl()),
		historyLimit:    cfg.SessionCache.historyLimit(),
		clarificationID: clarificationID,
		fallbackID:      fallbackID,
	}, nil
}

// Status is the engine's readiness snapshot.
type Status struct {
	IsReady             bool               `json:"is_ready"`
	AvailableAgentCount int                `json:"available_agent_count"`
	AvailableAgents     []models.AgentCard `json:"available_agents"`
}

// GetStatus reports readiness and the registered agents.
func (e *Engine) GetStatus() Status {
	cards := e.registry.List()
	return Status{
		IsReady:             e.router != nil,
		AvailableAgentCount: len(cards),
		AvailableAgents:     cards,
	}
}

// SubscribeObserver registers a pipeline event handler.
func (e *Engine) SubscribeObserver(handler events.Handler) uint64 {
	return e.bus.Subscribe(handler)
}

// UnsubscribeObserver removes an observer subscription.
func (e *Engine) UnsubscribeObserver(id uint64) {
	e.bus.Unsubscribe(id)
}

// Bus exposes the underlying event bus for wiring delivery sinks.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// publisher stamps request id, timestamp, and the per-request sequence on
// every event of one request.
type publisher struct {
	bus       *events.Bus
	requestID string
	seq       uint64
}

func (p *publisher) publish(event events.Event) {
	p.seq++
	event.RequestID = p.requestID
	event.Sequence = p.seq
	event.Timestamp = time.Now().UTC()
	p.bus.Publish(event)
}

// ProcessRequest runs one utterance through the pipeline and returns the
// aggregated reply.
//
// Cancellation returns the context error and marks the task canceled on a
// best-effort basis. Internal failures never surface as errors: the user
// gets GracefulErrorReply and the observer stream gets an error event.
// Storage failures degrade the request to an in-memory context with a
// logged warning.
func (e *Engine) ProcessRequest(ctx context.Context, utterance, taskID, sessionID string) (reply string, err error) {
	requestID := uuid.New().String()
	pub := &publisher{bus: e.bus, requestID: requestID}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Request pipeline panicked", "request_id", requestID, "panic", r)
			pub.publish(events.Event{
				Type:  events.TypeError,
				Error: &events.ErrorPayload{Stage: "engine", Message: fmt.Sprint(r)},
			})
			reply, err = GracefulErrorReply, nil
		}
	}()

	slog.Info("Processing request",
		"request_id", requestID, "task_id", taskID, "session_id", sessionID)

	task, oc, persist := e.resolveTask(ctx, taskID, sessionID)

	pub.publish(events.Event{
		Type: events.TypeRequestStarted,
		RequestStarted: &events.RequestStartedPayload{
			UserUtterance: utterance,
			History:       oc.History,
		},
	})

	if persist {
		task.AppendHistory(a2a.TextMessage(a2a.RoleUser, utterance))
		persist = e.persistTask(ctx, task)
	}

	decision, rerr := e.router.Route(ctx, utterance, recapFromTask(task))
	if rerr != nil {
		e.markCanceled(ctx, task, persist)
		return "", rerr
	}
	pub.publish(events.Event{
		Type: events.TypeRoutingCompleted,
		RoutingCompleted: &events.RoutingCompletedPayload{
			Decision:     decision,
			SystemPrompt: e.router.SystemPrompt(),
		},
	})

	userTurn := models.NewUserTurn(utterance)
	wrappers := e.buildWrappers(decision)
	responses, derr := Dispatch(ctx, decision, wrappers, userTurn, oc, task.ID,
		func(response models.AgentResponse) {
			pub.publish(events.Event{
				Type:           events.TypeAgentExecutionCompleted,
				AgentExecution: &events.AgentExecutionPayload{Response: response},
			})
		})
	if derr != nil {
		e.markCanceled(ctx, task, persist)
		return "", derr
	}

	result := Aggregate(responses, e.aggOpts)
	pub.publish(events.Event{
		Type:     events.TypeExecutorCompleted,
		Executor: &events.ExecutorPayload{Result: result},
	})
	if len(result.FailedAgents) > 0 {
		pub.publish(events.Event{
			Type:     events.TypeExecutorFailed,
			Executor: &events.ExecutorPayload{Result: result},
		})
	}

	finalState := a2a.StateCompleted
	if result.TotalFailure() {
		finalState = a2a.StateFailed
	}
	if persist {
		task.AppendHistory(a2a.TextMessage(a2a.RoleAgent, result.Message))
		updateRecap(task, decision.PrimaryAgentID, utterance)
		setState(task, finalState)
		e.persistTask(ctx, task)
	}

	pub.publish(events.Event{
		Type:               events.TypeResponseAggregated,
		ResponseAggregated: &events.ResponseAggregatedPayload{FinalText: result.Message},
	})

	e.sessions.put(sessionKey(sessionID, oc.ConversationID), oc)

	slog.Info("Request completed",
		"request_id", requestID, "task_id", task.ID, "state", finalState,
		"agents", len(responses))
	return result.Message, nil
}

// resolveTask loads or creates the durable task and the orchestration
// context for this request. The returned bool reports whether the store is
// usable for the rest of the request.
func (e *Engine) resolveTask(ctx context.Context, taskID, sessionID string) (*a2a.Task, *models.OrchestrationContext, bool) {
	persist := e.store != nil

	var task *a2a.Task
	if persist && taskID != "" {
		loaded, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			slog.Warn("Task load failed, proceeding without persistence",
				"task_id", taskID, "error", err)
			persist = false
		} else {
			task = loaded
		}
	}

	if task == nil {
		task = a2a.NewTask(taskID, "")
		if persist {
			if err := e.store.SetTask(ctx, task); err != nil {
				slog.Warn("Task create failed, proceeding without persistence",
					"task_id", task.ID, "error", err)
				persist = false
			} else if updated, err := e.store.UpdateStatus(ctx, task.ID, a2a.StateWorking, ""); err != nil {
				slog.Warn("Task status update failed", "task_id", task.ID, "error", err)
			} else {
				task = updated
			}
		}
	} else if persist {
		// Resumed task: re-open it directly. The engine owning the request
		// is the only writer, so last-writer-wins at the key is safe even
		// from a terminal state.
		setState(task, a2a.StateWorking)
		persist = e.persistTask(ctx, task)
	}

	key := sessionKey(sessionID, task.ContextID)
	oc := e.sessions.get(key)
	if oc == nil || oc.ConversationID != task.ContextID {
		oc = models.NewOrchestrationContext(task.ContextID)
		oc.History = task.HistoryTurns()
		oc.TrimHistory(e.historyLimit)
	}
	return task, oc, persist
}

// persistTask writes the task, logging and reporting failure instead of
// aborting the request.
func (e *Engine) persistTask(ctx context.Context, task *a2a.Task) bool {
	if err := e.store.SetTask(ctx, task); err != nil {
		slog.Warn("Task write failed, proceeding without persistence",
			"task_id", task.ID, "error", err)
		return false
	}
	return true
}

// markCanceled records the canceled state after the request context is
// already done, on a short detached deadline.
func (e *Engine) markCanceled(ctx context.Context, task *a2a.Task, persist bool) {
	if !persist {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelWriteTimeout)
	defer cancel()

	setState(task, a2a.StateCanceled)
	if err := e.store.SetTask(dctx, task); err != nil {
		slog.Warn("Canceled-status write failed", "task_id", task.ID, "error", err)
	}
}

// buildWrappers resolves every routed id to an executor. Local
// implementations win; registry cards with remote endpoints get a remote
// wrapper; the reserved ids get their built-in agents. Unresolvable ids are
// logged and skipped, the dispatcher tolerates the gap.
func (e *Engine) buildWrappers(decision models.RoutingDecision) map[string]*agent.Wrapper {
	ids := append([]string{decision.PrimaryAgentID}, decision.AdditionalAgentIDs...)
	wrappers := make(map[string]*agent.Wrapper, len(ids))
	for _, id := range ids {
		if _, ok := wrappers[id]; ok {
			continue
		}
		wrapper, err := e.wrapperFor(id, decision)
		if err != nil {
			slog.Warn("No executor for routed agent", "agent_id", id, "error", err)
			continue
		}
		wrappers[id] = wrapper
	}
	return wrappers
}

func (e *Engine) wrapperFor(id string, decision models.RoutingDecision) (*agent.Wrapper, error) {
	if local, ok := e.locals[id]; ok {
		return agent.NewLocal(id, local, e.wrapperOpts)
	}
	if card, ok := e.registry.Get(id); ok && card.IsRemote() {
		return agent.NewRemote(card, e.deliverer, e.wrapperOpts)
	}
	switch id {
	case e.clarificationID:
		return agent.NewLocal(id, agent.Clarification(decision.Reasoning), e.wrapperOpts)
	case e.fallbackID:
		return agent.NewLocal(id, e.fallback, e.wrapperOpts)
	}
	return nil, fmt.Errorf("agent %q has neither a local implementation nor a remote card", id)
}

func sessionKey(sessionID, conversationID string) string {
	if sessionID != "" {
		return sessionID
	}
	return conversationID
}

func setState(task *a2a.Task, state a2a.State) {
	task.Status = &a2a.TaskStatus{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// recapFromTask extracts the routing recap from task metadata. Raw history
// content never reaches the routing prompt.
func recapFromTask(task *a2a.Task) router.Recap {
	if task == nil || task.Metadata == nil {
		return router.Recap{}
	}
	recap := router.Recap{}
	if v, ok := task.Metadata[metaLocation].(string); ok {
		recap.Location = v
	}
	if v, ok := task.Metadata[metaTopic].(string); ok {
		recap.ConversationTopic = v
	}
	switch agents := task.Metadata[metaPreviousAgents].(type) {
	case []string:
		recap.PreviousAgents = agents
	case []any:
		for _, a := range agents {
			if s, ok := a.(string); ok {
				recap.PreviousAgents = append(recap.PreviousAgents, s)
			}
		}
	}
	return recap
}

// updateRecap records the primary agent and the latest topic on the task
// for the next request's routing prompt.
func updateRecap(task *a2a.Task, primaryID, utterance string) {
	if task.Metadata == nil {
		task.Metadata = make(map[string]any)
	}
	previous := recapFromTask(task).PreviousAgents
	if n := len(previous); n == 0 || previous[n-1] != primaryID {
		previous = append(previous, primaryID)
	}
	task.Metadata[metaPreviousAgents] = previous
	task.Metadata[metaTopic] = truncateTopic(utterance)
}

func truncateTopic(s string) string {
	runes := []rune(s)
	if len(runes) <= topicLimit {
		return s
	}
	return string(runes[:topicLimit]) + "…"
}
