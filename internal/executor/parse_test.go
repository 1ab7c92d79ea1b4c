package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCalls_FencedBlock(t *testing.T) {
	response := "I'll help you with that.\n\n```json\n{\"tool\": \"echo\", \"args\": {\"text\": \"hi\"}}\n```\n\nLet me check."

	calls := ParseToolCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Tool)
	assert.Equal(t, "hi", calls[0].Args["text"])
}

func TestParseToolCalls_TwoFencedBlocksInOrder(t *testing.T) {
	response := "```json\n{\"tool\": \"first\", \"args\": {}}\n```\n\nand then:\n\n```json\n{\"tool\": \"second\", \"args\": {}}\n```\n"

	calls := ParseToolCalls(response)
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Tool)
	assert.Equal(t, "second", calls[1].Tool)
}

func TestParseToolCalls_FencedArray(t *testing.T) {
	response := "```json\n[{\"tool\": \"a\", \"args\": {}}, {\"tool\": \"b\", \"args\": {}}]\n```"

	calls := ParseToolCalls(response)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Tool)
	assert.Equal(t, "b", calls[1].Tool)
}

func TestParseToolCalls_InlineFallback(t *testing.T) {
	response := `Sure thing: {"tool": "lookup", "args": {"q": "weather"}} coming right up.`

	calls := ParseToolCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "lookup", calls[0].Tool)
}

func TestParseToolCalls_InlineIgnoredWhenFencedPresent(t *testing.T) {
	response := "```json\n{\"tool\": \"fenced\", \"args\": {}}\n```\n{\"tool\": \"inline\", \"args\": {}}"

	calls := ParseToolCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "fenced", calls[0].Tool)
}

func TestParseToolCalls_NestedBracesInString(t *testing.T) {
	response := `{"tool": "echo", "args": {"text": "hello } world"}}`

	calls := ParseToolCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "hello } world", calls[0].Args["text"])
}

func TestParseToolCalls_NoToolCall(t *testing.T) {
	assert.Empty(t, ParseToolCalls("Just a plain answer."))
	assert.Empty(t, ParseToolCalls("```json\n{\"not_a_tool\": 1}\n```"))
	assert.Empty(t, ParseToolCalls(""))
}

func TestParseToolCalls_MalformedJSONSwallowed(t *testing.T) {
	assert.Empty(t, ParseToolCalls("```json\n{\"tool\": \"broken\"\n```"))
}

func TestFindMatchingBrace(t *testing.T) {
	s := `{"tool": "test", "args": {"nested": "value"}}`
	idx, ok := findMatchingBrace(s)
	require.True(t, ok)
	assert.Equal(t, len(s)-1, idx)
}

func TestFindMatchingBrace_EscapedQuote(t *testing.T) {
	s := `{"text": "a \" b { c"}`
	idx, ok := findMatchingBrace(s)
	require.True(t, ok)
	assert.Equal(t, len(s)-1, idx)
}

func TestFindMatchingBrace_Unclosed(t *testing.T) {
	_, ok := findMatchingBrace(`{"tool": "x"`)
	assert.False(t, ok)
}

func TestExtractFinalResponse_RemovesFencedBlocks(t *testing.T) {
	response := "Here is the answer.\n```json\n{\"tool\": \"x\", \"args\": {}}\n```\nDone."
	assert.Equal(t, "Here is the answer.\nDone.", ExtractFinalResponse(response))
}

func TestExtractFinalResponse_TruncatesIncompleteToolJSON(t *testing.T) {
	response := "All finished. {\"tool\": \"oops\""
	assert.Equal(t, "All finished.", ExtractFinalResponse(response))
}

func TestExtractFinalResponse_PlainTextUntouched(t *testing.T) {
	assert.Equal(t, "All done.", ExtractFinalResponse("All done."))
	assert.Equal(t, "Use {braces} freely.", ExtractFinalResponse("Use {braces} freely."))
}

func TestExtractJSONBlocks_Unterminated(t *testing.T) {
	blocks := extractJSONBlocks("```json\n{\"tool\": \"x\", \"args\": {}}")
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], `"tool"`)
}
