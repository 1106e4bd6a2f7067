package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactParseAction(t *testing.T) {
	s := NewReactStrategy()

	raw := "Thought: I should check the index.\nAction: search\nAction Input: {\"query\": \"circuit breaker cooldown\"}\n"
	result, err := s.Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "search", result.ToolCalls[0].Name)
	assert.Equal(t, "circuit breaker cooldown", result.ToolCalls[0].Arguments["query"])
	assert.Contains(t, result.Reasoning, "I should check the index.")
}

func TestReactParseFinalAnswer(t *testing.T) {
	s := NewReactStrategy()

	result, err := s.Parse("Thought: I know this already.\nFinal Answer: The cooldown doubles on a failed probe.")
	require.NoError(t, err)
	require.NotNil(t, result.Final)
	assert.Equal(t, "The cooldown doubles on a failed probe.", result.Final.Content)
}

func TestReactParseNoActionFallsBackToFinal(t *testing.T) {
	s := NewReactStrategy()

	result, err := s.Parse("Honestly I'm just going to ramble here with no structure at all.")
	require.NoError(t, err)
	require.NotNil(t, result.Final)
	assert.Empty(t, result.ToolCalls)
}

func TestReactParseMalformedInputNeverRaises(t *testing.T) {
	s := NewReactStrategy()

	result, err := s.Parse("Action: search\nAction Input: {not json at all")
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	// Malformed input is carried through instead of failing the turn.
	assert.NotNil(t, result.ToolCalls[0].Arguments["input"])
}

func TestReactParseFencedActionInput(t *testing.T) {
	s := NewReactStrategy()

	result, err := s.Parse("Action: search\nAction Input: ```json\n{\"query\": \"rrf constant\"}\n```")
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "rrf constant", result.ToolCalls[0].Arguments["query"])
}

func TestReactFinalAnswerBeforeActionWins(t *testing.T) {
	s := NewReactStrategy()

	result, err := s.Parse("Final Answer: done.\nAction: search\nAction Input: {}")
	require.NoError(t, err)
	require.NotNil(t, result.Final)
	assert.Empty(t, result.ToolCalls)
}
