package models

// Thread is an opaque per-agent conversation handle. Agents that keep
// internal state between turns return one from Handle; the core never
// inspects it.
type Thread any

// AgentThread binds an opaque thread to the conversation it was created for.
// A thread must not be reused once the conversation changes.
type AgentThread struct {
	ConversationID string
	Handle         Thread
}

// OrchestrationContext is the per-conversation mutable state threaded through
// the dispatcher. It is owned by a single request at a time: wrappers execute
// sequentially and each sees the mutations of its predecessors.
type OrchestrationContext struct {
	ConversationID  string
	PreviousAgentID string

	// History holds the most recent chat turns, oldest first. TrimHistory
	// keeps it within the configured limit after every mutation.
	History []ChatTurn

	// AgentThreads maps agent id to that agent's reusable thread handle.
	AgentThreads map[string]AgentThread
}

// NewOrchestrationContext creates an empty context for a conversation.
func NewOrchestrationContext(conversationID string) *OrchestrationContext {
	return &OrchestrationContext{
		ConversationID: conversationID,
		AgentThreads:   make(map[string]AgentThread),
	}
}

// Clone returns an independent copy. History and the thread map are copied;
// the opaque thread handles themselves are shared, agents replace them
// wholesale on every turn.
func (c *OrchestrationContext) Clone() *OrchestrationContext {
	clone := &OrchestrationContext{
		ConversationID:  c.ConversationID,
		PreviousAgentID: c.PreviousAgentID,
		History:         append([]ChatTurn(nil), c.History...),
		AgentThreads:    make(map[string]AgentThread, len(c.AgentThreads)),
	}
	for id, t := range c.AgentThreads {
		clone.AgentThreads[id] = t
	}
	return clone
}

// AppendTurns adds turns to the history and trims to limit.
func (c *OrchestrationContext) AppendTurns(limit int, turns ...ChatTurn) {
	c.History = append(c.History, turns...)
	c.TrimHistory(limit)
}

// TrimHistory discards the oldest turns until the history fits within limit.
// A non-positive limit leaves the history untouched.
func (c *OrchestrationContext) TrimHistory(limit int) {
	if limit <= 0 || len(c.History) <= limit {
		return
	}
	trimmed := make([]ChatTurn, limit)
	copy(trimmed, c.History[len(c.History)-limit:])
	c.History = trimmed
}

// ThreadFor returns the stored thread handle for agentID if it was created
// for the current conversation. Handles from other conversations are stale
// and reported as absent.
func (c *OrchestrationContext) ThreadFor(agentID string) (Thread, bool) {
	t, ok := c.AgentThreads[agentID]
	if !ok || t.ConversationID != c.ConversationID {
		return nil, false
	}
	return t.Handle, true
}

// SetThread replaces the stored thread handle for agentID. The previous
// handle, if any, is discarded wholesale.
func (c *OrchestrationContext) SetThread(agentID string, handle Thread) {
	if c.AgentThreads == nil {
		c.AgentThreads = make(map[string]AgentThread)
	}
	c.AgentThreads[agentID] = AgentThread{ConversationID: c.ConversationID, Handle: handle}
}
