package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucia-home/lucia/pkg/models"
)

func TestSessionCacheGetPut(t *testing.T) {
	cache := newSessionCache(5 * time.Minute)

	assert.Nil(t, cache.get("missing"))

	oc := models.NewOrchestrationContext("conv-1")
	oc.History = []models.ChatTurn{models.NewUserTurn("hello")}
	cache.put("s1", oc)

	got := cache.get("s1")
	require.NotNil(t, got)
	assert.Equal(t, oc.ConversationID, got.ConversationID)
	assert.Equal(t, oc.History, got.History)

	// Empty keys are never stored or looked up.
	cache.put("", oc)
	assert.Nil(t, cache.get(""))
}

func TestSessionCacheGetReturnsIndependentCopies(t *testing.T) {
	cache := newSessionCache(5 * time.Minute)

	oc := models.NewOrchestrationContext("conv-1")
	oc.SetThread("light", 1)
	oc.History = []models.ChatTurn{models.NewUserTurn("hello")}
	cache.put("s1", oc)

	first := cache.get("s1")
	second := cache.get("s1")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	// Mutations on one request's context never reach another's.
	first.History = append(first.History, models.NewAssistantTurn("hi"))
	first.PreviousAgentID = "light"
	first.SetThread("light", 2)

	assert.Len(t, second.History, 1)
	assert.Empty(t, second.PreviousAgentID)
	handle, ok := second.ThreadFor("light")
	require.True(t, ok)
	assert.Equal(t, 1, handle)
}

func TestSessionCacheExpiry(t *testing.T) {
	cache := newSessionCache(5 * time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.put("s1", models.NewOrchestrationContext("conv-1"))

	current = current.Add(4 * time.Minute)
	assert.NotNil(t, cache.get("s1"))

	current = current.Add(2 * time.Minute)
	assert.Nil(t, cache.get("s1"), "entry past its ttl is gone")
}

func TestSessionCachePutRefreshesExpiry(t *testing.T) {
	cache := newSessionCache(5 * time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	oc := models.NewOrchestrationContext("conv-1")
	cache.put("s1", oc)

	current = current.Add(4 * time.Minute)
	cache.put("s1", oc)

	current = current.Add(4 * time.Minute)
	assert.NotNil(t, cache.get("s1"), "rewrite extended the ttl")
}

func TestSessionCachePutSweepsExpiredPeers(t *testing.T) {
	cache := newSessionCache(5 * time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.put("stale", models.NewOrchestrationContext("conv-1"))

	current = current.Add(10 * time.Minute)
	cache.put("fresh", models.NewOrchestrationContext("conv-2"))

	cache.mu.Lock()
	_, staleKept := cache.entries["stale"]
	cache.mu.Unlock()
	assert.False(t, staleKept, "expired entries are swept on write")
}

func TestSessionCacheOptionDefaults(t *testing.T) {
	var opts SessionCacheOptions
	assert.Equal(t, DefaultSessionCacheLength, opts.ttl())
	assert.Equal(t, DefaultMaxHistoryItems, opts.historyLimit())

	opts = SessionCacheOptions{SessionCacheLengthMinutes: 30, MaxHistoryItems: 8}
	assert.Equal(t, 30*time.Minute, opts.ttl())
	assert.Equal(t, 8, opts.historyLimit())
}
