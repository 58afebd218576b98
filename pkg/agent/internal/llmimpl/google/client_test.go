package google

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftflow/pkg/agent/llm"
)

func TestEnsureClientConcurrent(t *testing.T) {
	g, ok := NewClient("test-key", "gemini-2.0-flash").(*GeminiClient)
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.ensureClient(context.Background()))
		}()
	}
	wg.Wait()

	assert.NotNil(t, g.client)
}

func TestConvertMessages(t *testing.T) {
	contents, system, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)

	_, _, err = convertMessages(nil)
	assert.Error(t, err)

	_, _, err = convertMessages([]llm.CompletionMessage{{Role: llm.RoleSystem, Content: "only system"}})
	assert.Error(t, err)
}
