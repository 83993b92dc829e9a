package envelope

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMintsFreshIDAndSynthesisesTrace(t *testing.T) {
	env := New(Parent{}, EventTypeRaw, "2026-01-01T00:00:00Z")

	assert.True(t, strings.HasPrefix(env.EventID, "evt_"))
	assert.True(t, strings.HasPrefix(env.TraceID, "trace_"))
	assert.Empty(t, env.SourceEventID)
	assert.Equal(t, WireVersion, env.Version)
}

func TestNewPropagatesParentTrace(t *testing.T) {
	parent := New(Parent{}, EventTypeRaw, "2026-01-01T00:00:00Z")

	child := New(Parent{EventID: parent.EventID, TraceID: parent.TraceID}, EventTypeNormalized, "2026-01-01T00:00:01Z")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.EventID, child.SourceEventID)
	assert.NotEqual(t, parent.EventID, child.EventID)
}

func TestNewAlertUsesAlertPrefix(t *testing.T) {
	env := New(Parent{TraceID: "trace_x"}, EventTypeAlert, "2026-01-01T00:00:00Z")
	assert.True(t, strings.HasPrefix(env.EventID, "alert_"))
}

func TestIDGenerationIsProcessSafe(t *testing.T) {
	const n = 500
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = NewEventID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id generated under concurrency: %s", id)
		seen[id] = struct{}{}
	}
}
