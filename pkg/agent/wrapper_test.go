package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucia-home/lucia/pkg/a2a"
	"github.com/lucia-home/lucia/pkg/models"
)

// fakeDeliverer returns a canned delivery result or error.
type fakeDeliverer struct {
	result *a2a.DeliveryResult
	err    error
	got    a2a.DeliveryRequest
}

func (d *fakeDeliverer) Deliver(_ context.Context, req a2a.DeliveryRequest) (*a2a.DeliveryResult, error) {
	d.got = req
	return d.result, d.err
}

func echoAgent() LocalAgent {
	return Func(func(_ context.Context, turn models.ChatTurn, thread models.Thread) (string, models.Thread, error) {
		return "echo: " + turn.Text, thread, nil
	})
}

func remoteCard(id string) models.AgentCard {
	return models.AgentCard{ID: id, URLOrLocal: "https://agents.example.com/" + id}
}

func taskResult(state a2a.State, agentText string) *a2a.DeliveryResult {
	task := a2a.NewTask("t1", "c1")
	task.Status = &a2a.TaskStatus{State: state}
	if agentText != "" {
		task.AppendHistory(a2a.TextMessage(a2a.RoleAgent, agentText))
	}
	return &a2a.DeliveryResult{Task: task}
}

func TestNewLocalValidation(t *testing.T) {
	_, err := NewLocal("", echoAgent(), Options{})
	assert.Error(t, err)

	_, err = NewLocal("light", nil, Options{})
	assert.Error(t, err)

	w, err := NewLocal("light", echoAgent(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "light", w.AgentID())
}

func TestNewRemoteValidation(t *testing.T) {
	_, err := NewRemote(remoteCard("light"), nil, Options{})
	assert.Error(t, err, "remote card without deliverer must fail construction")

	_, err = NewRemote(models.AgentCard{ID: "light", URLOrLocal: "light"}, &fakeDeliverer{}, Options{})
	assert.Error(t, err, "local card cannot back a remote wrapper")

	_, err = NewRemote(remoteCard("light"), &fakeDeliverer{}, Options{})
	assert.NoError(t, err)
}

func TestInvokeLocalSuccess(t *testing.T) {
	w, err := NewLocal("light", echoAgent(), Options{})
	require.NoError(t, err)

	oc := models.NewOrchestrationContext("conv-1")
	resp := w.Invoke(context.Background(), models.NewUserTurn("lights on"), oc, "task-1")

	assert.True(t, resp.Success)
	assert.Equal(t, "echo: lights on", resp.Content)
	assert.Equal(t, "light", resp.AgentID)
	assert.Empty(t, resp.ErrorMessage)
	assert.GreaterOrEqual(t, resp.ExecutionMS, int64(0))

	// Context mutations: both turns appended, previous agent recorded.
	require.Len(t, oc.History, 2)
	assert.Equal(t, models.RoleUser, oc.History[0].Role)
	assert.Equal(t, models.RoleAssistant, oc.History[1].Role)
	assert.Equal(t, "light", oc.PreviousAgentID)
}

func TestInvokeLocalErrorProducesFailureResponse(t *testing.T) {
	failing := Func(func(context.Context, models.ChatTurn, models.Thread) (string, models.Thread, error) {
		return "", nil, errors.New("player offline")
	})
	w, err := NewLocal("music", failing, Options{})
	require.NoError(t, err)

	oc := models.NewOrchestrationContext("conv-1")
	resp := w.Invoke(context.Background(), models.NewUserTurn("play jazz"), oc, "")

	assert.False(t, resp.Success)
	assert.Equal(t, "player offline", resp.ErrorMessage)
	assert.Empty(t, oc.History, "failed invocations do not append history")
	assert.Empty(t, oc.PreviousAgentID)
}

func TestInvokeLocalPanicIsContained(t *testing.T) {
	panicking := Func(func(context.Context, models.ChatTurn, models.Thread) (string, models.Thread, error) {
		panic("boom")
	})
	w, err := NewLocal("light", panicking, Options{})
	require.NoError(t, err)

	resp := w.Invoke(context.Background(), models.NewUserTurn("x"), models.NewOrchestrationContext("c"), "")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "boom")
}

func TestInvokeTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ models.ChatTurn, _ models.Thread) (string, models.Thread, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil, nil
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	})
	w, err := NewLocal("slow", slow, Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	resp := w.Invoke(context.Background(), models.NewUserTurn("x"), models.NewOrchestrationContext("c"), "")

	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "agent timed out after 50ms")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeTimeoutIgnoringAgent(t *testing.T) {
	// Handler that ignores its context entirely.
	stubborn := Func(func(context.Context, models.ChatTurn, models.Thread) (string, models.Thread, error) {
		time.Sleep(5 * time.Second)
		return "too late", nil, nil
	})
	w, err := NewLocal("stubborn", stubborn, Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	resp := w.Invoke(context.Background(), models.NewUserTurn("x"), models.NewOrchestrationContext("c"), "")

	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "agent timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeCallerDeadlineNotBlamedOnAgent(t *testing.T) {
	slow := Func(func(ctx context.Context, _ models.ChatTurn, _ models.Thread) (string, models.Thread, error) {
		<-ctx.Done()
		return "", nil, ctx.Err()
	})
	w, err := NewLocal("slow", slow, Options{Timeout: 10 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp := w.Invoke(ctx, models.NewUserTurn("x"), models.NewOrchestrationContext("c"), "")

	assert.False(t, resp.Success)
	assert.NotContains(t, resp.ErrorMessage, "agent timed out",
		"the wrapper timeout never fired, the caller's deadline did")
	assert.Contains(t, resp.ErrorMessage, "context deadline exceeded")
}

func TestInvokeThreadReuse(t *testing.T) {
	calls := 0
	counting := Func(func(_ context.Context, _ models.ChatTurn, thread models.Thread) (string, models.Thread, error) {
		calls++
		count, _ := thread.(int)
		return "ok", count + 1, nil
	})
	w, err := NewLocal("light", counting, Options{})
	require.NoError(t, err)

	oc := models.NewOrchestrationContext("conv-1")
	w.Invoke(context.Background(), models.NewUserTurn("a"), oc, "")
	w.Invoke(context.Background(), models.NewUserTurn("b"), oc, "")

	handle, ok := oc.ThreadFor("light")
	require.True(t, ok)
	assert.Equal(t, 2, handle, "thread handle accumulates across turns")

	// A different conversation discards the thread.
	oc.ConversationID = "conv-2"
	w.Invoke(context.Background(), models.NewUserTurn("c"), oc, "")
	handle, ok = oc.ThreadFor("light")
	require.True(t, ok)
	assert.Equal(t, 1, handle, "fresh thread for the new conversation")
}

func TestInvokeHistoryLimit(t *testing.T) {
	w, err := NewLocal("light", echoAgent(), Options{HistoryLimit: 4})
	require.NoError(t, err)

	oc := models.NewOrchestrationContext("conv-1")
	for i := 0; i < 5; i++ {
		w.Invoke(context.Background(), models.NewUserTurn("turn"), oc, "")
	}
	assert.Len(t, oc.History, 4)
}

func TestInvokeRemoteStatuses(t *testing.T) {
	tests := []struct {
		name        string
		result      *a2a.DeliveryResult
		wantSuccess bool
		wantContent string
		wantErrPart string
	}{
		{
			name:        "completed task",
			result:      taskResult(a2a.StateCompleted, "lights are on"),
			wantSuccess: true,
			wantContent: "lights are on",
		},
		{
			name:        "working task is successful transport",
			result:      taskResult(a2a.StateWorking, "still at it"),
			wantSuccess: true,
			wantContent: "still at it",
		},
		{
			name:        "input-required task is successful transport",
			result:      taskResult(a2a.StateInputRequired, "which room?"),
			wantSuccess: true,
			wantContent: "which room?",
		},
		{
			name:        "failed task carries status name",
			result:      taskResult(a2a.StateFailed, ""),
			wantSuccess: false,
			wantErrPart: `status "failed"`,
		},
		{
			name:        "bare message",
			result:      &a2a.DeliveryResult{Message: a2a.TextMessage(a2a.RoleAgent, "direct reply")},
			wantSuccess: true,
			wantContent: "direct reply",
		},
		{
			name:        "empty result",
			result:      &a2a.DeliveryResult{},
			wantSuccess: false,
			wantErrPart: "remote agent returned no response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewRemote(remoteCard("light"), &fakeDeliverer{result: tt.result}, Options{})
			require.NoError(t, err)

			resp := w.Invoke(context.Background(), models.NewUserTurn("hello"), models.NewOrchestrationContext("c"), "")
			assert.Equal(t, tt.wantSuccess, resp.Success)
			if tt.wantSuccess {
				assert.Equal(t, tt.wantContent, resp.Content)
			} else {
				assert.Contains(t, resp.ErrorMessage, tt.wantErrPart)
			}
		})
	}
}

func TestInvokeRemotePayload(t *testing.T) {
	deliverer := &fakeDeliverer{result: taskResult(a2a.StateCompleted, "done")}
	w, err := NewRemote(remoteCard("light"), deliverer, Options{})
	require.NoError(t, err)

	oc := models.NewOrchestrationContext("conv-7")
	w.Invoke(context.Background(), models.NewUserTurn("lights"), oc, "task-7")

	assert.Equal(t, "conv-7", deliverer.got.ContextID)
	assert.Equal(t, "task-7", deliverer.got.TaskID)
	assert.Equal(t, "https://agents.example.com/light", deliverer.got.Endpoint)
	require.NotNil(t, deliverer.got.Message)
	assert.Equal(t, "lights", deliverer.got.Message.Text())
}

func TestClarificationAgent(t *testing.T) {
	plain := Clarification("")
	reply, _, err := plain.Handle(context.Background(), models.NewUserTurn("?"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultClarificationMessage, reply)

	hinted := Clarification("closest candidates: light, music")
	reply, _, err = hinted.Handle(context.Background(), models.NewUserTurn("?"), nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "light, music")
}
