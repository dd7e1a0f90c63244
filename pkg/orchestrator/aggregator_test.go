package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucia-home/lucia/pkg/models"
)

func ok(agentID, content string, ms int64) models.AgentResponse {
	return models.AgentResponse{AgentID: agentID, Content: content, Success: true, ExecutionMS: ms}
}

func failed(agentID, errMsg string, ms int64) models.AgentResponse {
	return models.AgentResponse{AgentID: agentID, Success: false, ErrorMessage: errMsg, ExecutionMS: ms}
}

func TestAggregateEmptyInput(t *testing.T) {
	result := Aggregate(nil, AggregatorOptions{})

	assert.Equal(t, DefaultFallbackMessage, result.Message)
	assert.Empty(t, result.SuccessfulAgents)
	assert.Empty(t, result.FailedAgents)
	assert.Zero(t, result.TotalExecutionMS)
	assert.False(t, result.TotalFailure())
}

func TestAggregateSingleSuccessVerbatim(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "I've turned on the hallway lights.", 120),
	}, AggregatorOptions{})

	assert.Equal(t, "I've turned on the hallway lights.", result.Message)
	assert.Equal(t, []string{"light"}, result.SuccessfulAgents)
	assert.Equal(t, int64(120), result.TotalExecutionMS)
}

func TestAggregatePriorityOrdering(t *testing.T) {
	// Arrival order: light, climate, music. Priority puts music before climate.
	result := Aggregate([]models.AgentResponse{
		ok("light", "Lights adjusted", 10),
		ok("climate", "Temperature set", 10),
		ok("music", "Music playing", 10),
	}, AggregatorOptions{AgentPriority: []string{"light", "music", "climate"}})

	lights := strings.Index(result.Message, "Lights adjusted")
	music := strings.Index(result.Message, "Music playing")
	climate := strings.Index(result.Message, "Temperature set")
	assert.True(t, lights < music && music < climate,
		"expected light before music before climate, got %q", result.Message)
	assert.Equal(t, []string{"light", "music", "climate"}, result.SuccessfulAgents)
}

func TestAggregateUnlistedAgentsSortAfterPriority(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("vacuum", "Floor cleaned", 10),
		ok("light", "Lights adjusted", 10),
	}, AggregatorOptions{AgentPriority: []string{"light"}})

	assert.Equal(t, []string{"light", "vacuum"}, result.SuccessfulAgents)
}

func TestAggregateSpaceJoinWithoutPunctuation(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "Lights adjusted", 0),
		ok("music", "Music playing", 0),
	}, AggregatorOptions{})

	assert.Equal(t, "Lights adjusted Music playing", result.Message)
}

func TestAggregateNewlineJoinWithPunctuation(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "Lights are on.", 0),
		ok("music", "Music is playing.", 0),
	}, AggregatorOptions{})

	assert.Equal(t, "Lights are on.\nMusic is playing.", result.Message)
}

func TestAggregateTotalFailure(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		failed("music", "Player offline", 30),
	}, AggregatorOptions{})

	assert.True(t, result.TotalFailure())
	assert.Contains(t, result.Message, "However")
	assert.Contains(t, result.Message, "Player offline")
	assert.Contains(t, result.Message, DefaultFailureMessage)
	require.Len(t, result.FailedAgents, 1)
	assert.Equal(t, "music", result.FailedAgents[0].AgentID)
}

func TestAggregateMixedSuccessAndFailure(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "Lights adjusted", 10),
		failed("music", "Player offline", 20),
	}, AggregatorOptions{})

	assert.False(t, result.TotalFailure())
	assert.True(t, strings.HasPrefix(result.Message, "Lights adjusted"))
	assert.Contains(t, result.Message, "However,")
	assert.Contains(t, result.Message, "Player offline")
	assert.Less(t, strings.Index(result.Message, "Lights adjusted"), strings.Index(result.Message, "However"))
}

func TestAggregateClampsNegativeDurations(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "ok", -50),
		ok("music", "ok", 30),
	}, AggregatorOptions{})

	assert.Equal(t, int64(30), result.TotalExecutionMS)
}

func TestAggregateBlankSuccessContentNeverEmptiesMessage(t *testing.T) {
	tests := []struct {
		name      string
		responses []models.AgentResponse
	}{
		{"single empty content", []models.AgentResponse{ok("light", "", 10)}},
		{"single whitespace content", []models.AgentResponse{ok("light", "   ", 10)}},
		{"all contents blank", []models.AgentResponse{ok("light", "", 0), ok("music", " ", 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Aggregate(tt.responses, AggregatorOptions{})

			assert.Equal(t, DefaultFallbackMessage, result.Message)
			assert.NotEmpty(t, result.SuccessfulAgents, "blank content is still a success")
			assert.False(t, result.TotalFailure())
		})
	}
}

func TestAggregateBlankSuccessWithFailureReadsAsFailure(t *testing.T) {
	result := Aggregate([]models.AgentResponse{
		ok("light", "", 10),
		failed("music", "Player offline", 20),
	}, AggregatorOptions{})

	assert.True(t, strings.HasPrefix(result.Message, DefaultFailureMessage),
		"no blank success fragment may lead the message, got %q", result.Message)
	assert.Contains(t, result.Message, "Player offline")
	assert.Equal(t, result.Message, strings.TrimSpace(result.Message))
	assert.Equal(t, []string{"light"}, result.SuccessfulAgents)
	assert.False(t, result.TotalFailure())
}

func TestAggregateCustomMessages(t *testing.T) {
	opts := AggregatorOptions{
		FallbackMessage: "nobody home",
		FailureMessage:  "that went poorly",
	}

	empty := Aggregate(nil, opts)
	assert.Equal(t, "nobody home", empty.Message)

	allFailed := Aggregate([]models.AgentResponse{failed("a", "x", 0)}, opts)
	assert.Contains(t, allFailed.Message, "that went poorly")
}
