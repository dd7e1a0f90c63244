package orchestrator

import (
	"sort"
	"strings"

	"github.com/lucia-home/lucia/pkg/models"
)

// Default user-facing messages for rounds with nothing to say.
const (
	DefaultFallbackMessage = "I'm sorry, I wasn't able to find an agent to handle your request."
	DefaultFailureMessage  = "I wasn't able to complete your request."
)

// failureConnector introduces the failure clause appended after any
// successful content (or after the failure message on total failure).
const failureConnector = "However, I ran into some issues: "

// AggregatorOptions tunes response composition.
type AggregatorOptions struct {
	// AgentPriority orders successful responses in the final message.
	// Agents not listed sort after listed ones, keeping arrival order.
	AgentPriority []string `yaml:"agent_priority"`

	// FallbackMessage is returned when no agent produced a response at all.
	FallbackMessage string `yaml:"fallback_message"`

	// FailureMessage opens the reply when every agent failed.
	FailureMessage string `yaml:"failure_message"`
}

func (o AggregatorOptions) withDefaults() AggregatorOptions {
	if o.FallbackMessage == "" {
		o.FallbackMessage = DefaultFallbackMessage
	}
	if o.FailureMessage == "" {
		o.FailureMessage = DefaultFailureMessage
	}
	return o
}

// Aggregate reduces the dispatch round to a single user-facing message plus
// a summary record. The message is never empty.
func Aggregate(responses []models.AgentResponse, opts AggregatorOptions) models.AggregatedResult {
	opts = opts.withDefaults()

	if len(responses) == 0 {
		return models.AggregatedResult{
			Message:          opts.FallbackMessage,
			SuccessfulAgents: []string{},
			FailedAgents:     []models.FailedAgent{},
		}
	}

	var (
		successes []models.AgentResponse
		failed    []models.FailedAgent
		totalMS   int64
	)
	for _, r := range responses {
		ms := r.ExecutionMS
		if ms < 0 {
			ms = 0
		}
		totalMS += ms
		if r.Success {
			successes = append(successes, r)
		} else {
			failed = append(failed, models.FailedAgent{AgentID: r.AgentID, Error: r.ErrorMessage})
		}
	}

	orderByPriority(successes, opts.AgentPriority)

	successful := make([]string, len(successes))
	for i, r := range successes {
		successful[i] = r.AgentID
	}

	result := models.AggregatedResult{
		Message:          composeMessage(successes, failed, opts),
		SuccessfulAgents: successful,
		FailedAgents:     failed,
		TotalExecutionMS: totalMS,
	}
	if result.FailedAgents == nil {
		result.FailedAgents = []models.FailedAgent{}
	}
	return result
}

// orderByPriority sorts in place by priority-list index, then arrival order.
func orderByPriority(successes []models.AgentResponse, priority []string) {
	if len(priority) == 0 {
		return
	}
	rank := make(map[string]int, len(priority))
	for i, id := range priority {
		rank[id] = i
	}
	indexOf := func(id string) int {
		if i, ok := rank[id]; ok {
			return i
		}
		return len(priority)
	}
	sort.SliceStable(successes, func(i, j int) bool {
		return indexOf(successes[i].AgentID) < indexOf(successes[j].AgentID)
	})
}

// composeMessage builds the user-facing text. Agents may succeed with empty
// content; the composed message still must never be empty, so rounds whose
// successes are all blank fall back to the failure or fallback message.
func composeMessage(successes []models.AgentResponse, failed []models.FailedAgent, opts AggregatorOptions) string {
	joined := joinSuccesses(successes)
	switch {
	case joined == "" && len(failed) > 0:
		return opts.FailureMessage + " " + failureConnector + failureSentences(failed)
	case joined == "":
		return opts.FallbackMessage
	case len(failed) == 0:
		return joined
	default:
		return joined + " " + failureConnector + failureSentences(failed)
	}
}

// joinSuccesses concatenates successful contents in order, skipping blank
// ones. A single success is returned verbatim. Multiple contents are
// space-joined, or newline-joined when any of them ends in sentence
// punctuation.
func joinSuccesses(successes []models.AgentResponse) string {
	if len(successes) == 1 {
		if strings.TrimSpace(successes[0].Content) == "" {
			return ""
		}
		return successes[0].Content
	}
	sep := " "
	parts := make([]string, 0, len(successes))
	for _, r := range successes {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		if endsInSentencePunctuation(content) {
			sep = "\n"
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, sep)
}

// failureSentences renders one sentence per failure.
func failureSentences(failed []models.FailedAgent) string {
	sentences := make([]string, len(failed))
	for i, f := range failed {
		msg := strings.TrimSpace(f.Error)
		if msg == "" {
			msg = "unknown error"
		}
		if !endsInSentencePunctuation(msg) {
			msg += "."
		}
		sentences[i] = msg
	}
	return strings.Join(sentences, " ")
}

func endsInSentencePunctuation(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
