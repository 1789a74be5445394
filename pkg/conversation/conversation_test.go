package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertMessageAllocatesDenseIDs(t *testing.T) {
	c := New("")

	id0 := c.InsertMessage(RoleUser, []MessageSegment{TextSegment("hi")}, nil, nil)
	id1 := c.InsertMessage(RoleAssistant, []MessageSegment{TextSegment("hello")}, nil, nil)

	assert.Equal(t, MessageID(0), id0)
	assert.Equal(t, MessageID(1), id1)
	assert.Equal(t, MessageID(2), c.NextMessageID())
}

func TestAppendTextExtendsLastSegment(t *testing.T) {
	c := New("")
	id := c.InsertMessage(RoleAssistant, nil, nil, nil)

	require.NoError(t, c.AppendText(id, "Hi"))
	require.NoError(t, c.AppendText(id, " there"))

	msg, ok := c.Message(id)
	require.True(t, ok)
	require.Len(t, msg.Segments, 1)
	assert.Equal(t, "Hi there", msg.Segments[0].Text)
}

func TestAppendTextSkipsEmpty(t *testing.T) {
	c := New("")
	id := c.InsertMessage(RoleAssistant, nil, nil, nil)
	require.NoError(t, c.AppendText(id, ""))

	msg, _ := c.Message(id)
	assert.Empty(t, msg.Segments)
}

func TestAppendToMissingMessageErrors(t *testing.T) {
	c := New("")
	err := c.AppendText(42, "x")
	assert.Error(t, err)
}

func TestCoalescedSegmentsOnInsert(t *testing.T) {
	c := New("")
	id := c.InsertMessage(RoleAssistant, []MessageSegment{
		TextSegment("a"),
		TextSegment("b"),
		ThinkingSegment("t1", nil),
		ThinkingSegment("t2", nil),
	}, nil, nil)

	msg, _ := c.Message(id)
	require.Len(t, msg.Segments, 2)
	assert.Equal(t, "ab", msg.Segments[0].Text)
	assert.Equal(t, "t1t2", msg.Segments[1].Text)
}

func TestThinkingSignatureOverwritesOnAppend(t *testing.T) {
	c := New("")
	id := c.InsertMessage(RoleAssistant, []MessageSegment{ThinkingSegment("a", nil)}, nil, nil)

	sig := "sig-1"
	require.NoError(t, c.AppendThinking(id, "b", &sig))

	msg, _ := c.Message(id)
	require.Len(t, msg.Segments, 1)
	assert.Equal(t, "ab", msg.Segments[0].Text)
	require.NotNil(t, msg.Segments[0].Signature)
	assert.Equal(t, sig, *msg.Segments[0].Signature)
}

func TestRedactedThinkingSegmentsNeverMerge(t *testing.T) {
	c := New("")
	id := c.InsertMessage(RoleAssistant, nil, nil, nil)
	require.NoError(t, c.AppendRedactedThinking(id, []byte("a")))
	require.NoError(t, c.AppendRedactedThinking(id, []byte("b")))

	msg, _ := c.Message(id)
	require.Len(t, msg.Segments, 2)
}

func TestTruncateThroughRemovesLaterMessages(t *testing.T) {
	c := New("")
	id0 := c.InsertMessage(RoleUser, nil, nil, nil)
	c.InsertMessage(RoleAssistant, nil, nil, nil)
	c.InsertMessage(RoleUser, nil, nil, nil)

	ok := c.TruncateThrough(id0)
	assert.True(t, ok)
	assert.Len(t, c.Messages(), 0)
}

func TestDeleteMessageLeavesOthersIntact(t *testing.T) {
	c := New("")
	id0 := c.InsertMessage(RoleUser, nil, nil, nil)
	id1 := c.InsertMessage(RoleAssistant, nil, nil, nil)

	assert.True(t, c.DeleteMessage(id0))
	assert.False(t, c.DeleteMessage(id0))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, id1, msgs[0].ID)
}

func TestCumulativeUsageIsComponentwiseSum(t *testing.T) {
	c := New("")
	c.UpdateTokenUsage(TokenUsage{Input: 4, Output: 2})
	c.UpdateTokenUsage(TokenUsage{Input: 1, Output: 1, CacheRead: 3})

	assert.Equal(t, TokenUsage{Input: 5, Output: 3, CacheRead: 3}, c.CumulativeUsage())
	assert.Len(t, c.PerRequestUsage(), 2)
}

func TestTitleOrDefault(t *testing.T) {
	c := New("")
	assert.Equal(t, "New Thread", c.TitleOrDefault())

	c.SetTitle("Fix the parser")
	assert.Equal(t, "Fix the parser", c.TitleOrDefault())
}

func TestToModelMessagesPreservesInsertionOrder(t *testing.T) {
	c := New("")
	c.InsertMessage(RoleUser, []MessageSegment{TextSegment("1")}, nil, nil)
	c.InsertMessage(RoleAssistant, []MessageSegment{TextSegment("2")}, nil, nil)
	c.InsertMessage(RoleTool, []MessageSegment{TextSegment("3")}, nil, nil)

	rendered := c.ToModelMessages()
	require.Len(t, rendered, 3)
	assert.Equal(t, RoleUser, rendered[0].Role)
	assert.Equal(t, RoleAssistant, rendered[1].Role)
	assert.Equal(t, RoleTool, rendered[2].Role)
}
