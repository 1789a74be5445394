// Package conversation holds the in-memory transcript of a single agent
// conversation: ordered messages with role, segments, loaded context, and
// cumulative token usage (component C1 of the orchestration core).
package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageID is a per-conversation dense index, monotonically increasing,
// never reused.
type MessageID int

// PromptID identifies the current user turn; rotated on every submission.
type PromptID string

// NewPromptID generates a fresh PromptID.
func NewPromptID() PromptID {
	return PromptID(uuid.NewString())
}

// SegmentKind tags the variant of a MessageSegment.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentThinking
	SegmentRedactedThinking
)

// MessageSegment is a tagged union: Text(string), Thinking{text, signature},
// or RedactedThinking(bytes).
type MessageSegment struct {
	Kind      SegmentKind
	Text      string
	Signature *string // only meaningful for SegmentThinking
	Redacted  []byte  // only meaningful for SegmentRedactedThinking
}

// TextSegment builds a Text segment.
func TextSegment(text string) MessageSegment {
	return MessageSegment{Kind: SegmentText, Text: text}
}

// ThinkingSegment builds a Thinking segment with an optional signature.
func ThinkingSegment(text string, signature *string) MessageSegment {
	return MessageSegment{Kind: SegmentThinking, Text: text, Signature: signature}
}

// RedactedThinkingSegment builds a RedactedThinking segment.
func RedactedThinkingSegment(data []byte) MessageSegment {
	return MessageSegment{Kind: SegmentRedactedThinking, Redacted: append([]byte(nil), data...)}
}

// coalescible reports whether two adjacent segments of the same kind must
// be merged rather than kept distinct (§3: "Contiguous same-kind segments
// MUST be merged on append"; RedactedThinking is the declared exception,
// since it carries no text to concatenate into).
func coalescible(kind SegmentKind) bool {
	return kind == SegmentText || kind == SegmentThinking
}

// coalesceSegments merges adjacent Text/Thinking runs of a freshly-supplied
// segment slice, enforcing the §3 invariant for caller-constructed messages.
func coalesceSegments(segments []MessageSegment) []MessageSegment {
	out := make([]MessageSegment, 0, len(segments))
	for _, seg := range segments {
		if n := len(out); n > 0 && out[n-1].Kind == seg.Kind && coalescible(seg.Kind) {
			out[n-1].Text += seg.Text
			if seg.Signature != nil {
				out[n-1].Signature = seg.Signature
			}
			continue
		}
		out = append(out, seg)
	}
	return out
}

// LoadedContext is an attached, rendered blob of context (file excerpts,
// symbol bodies, prior-thread references) with structured provenance used
// to re-hydrate UI affordances.
type LoadedContext struct {
	Text       string
	Provenance map[string]any
}

// MessageCrease is a UI-restorable mark on a user message: a byte range,
// display metadata, and optionally a handle back to the context it
// represents. Context is always nil after a round trip through storage
// (§8 "Round-trip" property).
type MessageCrease struct {
	Start, End int
	Label      string
	Context    *LoadedContext
}

// Message is a single transcript entry. It is created exactly once, may
// have segments appended while streaming, may be edited in place by
// explicit user action, and is removed by DeleteMessage or TruncateThrough.
type Message struct {
	ID            MessageID
	Role          Role
	Segments      []MessageSegment
	LoadedContext []LoadedContext
	Creases       []MessageCrease
	Timestamp     time.Time

	// ToolUseID links a Tool-role message back to the ToolUseId of the
	// assistant tool call it answers (§4.1 to_model_messages).
	ToolUseID string
	// IsError marks a Tool-role message produced by a failed tool
	// invocation (§4.3 Result envelope).
	IsError bool
}

// lastSegment returns a pointer to the message's last segment, or nil.
func (m *Message) lastSegment() *MessageSegment {
	if len(m.Segments) == 0 {
		return nil
	}
	return &m.Segments[len(m.Segments)-1]
}

// TokenUsage is componentwise-additive token accounting.
type TokenUsage struct {
	Input          uint64
	Output         uint64
	CacheRead      uint64
	CacheCreation  uint64
}

// Add returns the componentwise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Input:         u.Input + other.Input,
		Output:        u.Output + other.Output,
		CacheRead:     u.CacheRead + other.CacheRead,
		CacheCreation: u.CacheCreation + other.CacheCreation,
	}
}

// ID is the opaque stable identifier of a Conversation, generated as a
// UUID; equality is by value.
type ID string

// NewID generates a fresh Conversation ID.
func NewID() ID {
	return ID(uuid.NewString())
}

const defaultTitle = "New Thread"

// Conversation is the authoritative, exclusively-owned transcript and
// token-usage ledger for one thread of interaction.
type Conversation struct {
	id            ID
	title         string
	updatedAt     time.Time
	messages      []*Message
	nextMessageID MessageID
	lastPromptID  PromptID
	perRequestUsage []TokenUsage
	cumulativeUsage TokenUsage
	lastChunkAt   *time.Time
}

// New creates a fresh, empty Conversation. If id is empty a fresh UUID is
// generated.
func New(id ID) *Conversation {
	if id == "" {
		id = NewID()
	}
	return &Conversation{
		id:        id,
		updatedAt: time.Now(),
	}
}

func (c *Conversation) ID() ID                      { return c.id }
func (c *Conversation) UpdatedAt() time.Time         { return c.updatedAt }
func (c *Conversation) NextMessageID() MessageID     { return c.nextMessageID }
func (c *Conversation) LastPromptID() PromptID       { return c.lastPromptID }
func (c *Conversation) CumulativeUsage() TokenUsage  { return c.cumulativeUsage }
func (c *Conversation) PerRequestUsage() []TokenUsage {
	out := make([]TokenUsage, len(c.perRequestUsage))
	copy(out, c.perRequestUsage)
	return out
}

// SetTitle sets the conversation's display title.
func (c *Conversation) SetTitle(title string) {
	c.title = title
	c.touch()
}

// TitleOrDefault returns the configured title, or the static placeholder
// when none was set.
func (c *Conversation) TitleOrDefault() string {
	if c.title == "" {
		return defaultTitle
	}
	return c.title
}

// RotatePrompt assigns a fresh PromptID for the next user turn and returns
// it.
func (c *Conversation) RotatePrompt() PromptID {
	c.lastPromptID = NewPromptID()
	return c.lastPromptID
}

func (c *Conversation) touch() {
	c.updatedAt = time.Now()
}

// Messages returns the transcript in strict insertion order. The slice is
// a defensive copy of the header; Message values themselves are not
// copied (callers must not mutate them outside the Conversation's owning
// scheduler).
func (c *Conversation) Messages() []*Message {
	out := make([]*Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Message looks up a message by id.
func (c *Conversation) Message(id MessageID) (*Message, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// InsertMessage allocates a fresh MessageID by post-increment, coalesces
// caller-supplied segments, appends the message, and bumps updatedAt.
func (c *Conversation) InsertMessage(role Role, segments []MessageSegment, loadedContext []LoadedContext, creases []MessageCrease) MessageID {
	id := c.nextMessageID
	c.nextMessageID++

	msg := &Message{
		ID:            id,
		Role:          role,
		Segments:      coalesceSegments(segments),
		LoadedContext: loadedContext,
		Creases:       creases,
		Timestamp:     time.Now(),
	}
	c.messages = append(c.messages, msg)
	c.touch()
	return id
}

// InsertToolMessage appends a Tool-role message carrying the result
// envelope for toolUseID (§4.3 Result envelope).
func (c *Conversation) InsertToolMessage(toolUseID, content string, isError bool) MessageID {
	id := c.InsertMessage(RoleTool, []MessageSegment{TextSegment(content)}, nil, nil)
	msg, _ := c.Message(id)
	msg.ToolUseID = toolUseID
	msg.IsError = isError
	return id
}

// AppendText is streaming-friendly: if id's last segment is Text, it is
// extended; otherwise a new Text segment is pushed. Appending empty text
// is a no-op. Appending to a nonexistent id is a caller bug and returns an
// error rather than panicking.
func (c *Conversation) AppendText(id MessageID, text string) error {
	if text == "" {
		return nil
	}
	msg, ok := c.Message(id)
	if !ok {
		return errors.Errorf("conversation: no such message %d", id)
	}
	if last := msg.lastSegment(); last != nil && last.Kind == SegmentText {
		last.Text += text
	} else {
		msg.Segments = append(msg.Segments, TextSegment(text))
	}
	c.touch()
	return nil
}

// AppendThinking is the Thinking analogue of AppendText. A non-nil
// signature overwrites the previous signature on the extended segment.
func (c *Conversation) AppendThinking(id MessageID, text string, signature *string) error {
	if text == "" && signature == nil {
		return nil
	}
	msg, ok := c.Message(id)
	if !ok {
		return errors.Errorf("conversation: no such message %d", id)
	}
	if last := msg.lastSegment(); last != nil && last.Kind == SegmentThinking {
		last.Text += text
		if signature != nil {
			last.Signature = signature
		}
	} else {
		msg.Segments = append(msg.Segments, ThinkingSegment(text, signature))
	}
	c.touch()
	return nil
}

// AppendRedactedThinking appends a RedactedThinking segment. Unlike Text
// and Thinking, adjacent RedactedThinking segments are never merged (§3).
func (c *Conversation) AppendRedactedThinking(id MessageID, data []byte) error {
	msg, ok := c.Message(id)
	if !ok {
		return errors.Errorf("conversation: no such message %d", id)
	}
	msg.Segments = append(msg.Segments, RedactedThinkingSegment(data))
	c.touch()
	return nil
}

// EditMessage replaces a message's contents in place, used by explicit
// user edits. It does not touch the ids of later messages. Returns false
// if id does not exist.
func (c *Conversation) EditMessage(id MessageID, role Role, segments []MessageSegment, loadedContext []LoadedContext) bool {
	msg, ok := c.Message(id)
	if !ok {
		return false
	}
	msg.Role = role
	msg.Segments = coalesceSegments(segments)
	if loadedContext != nil {
		msg.LoadedContext = loadedContext
	}
	c.touch()
	return true
}

// DeleteMessage removes a single message. Returns false if id does not
// exist.
func (c *Conversation) DeleteMessage(id MessageID) bool {
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// TruncateThrough removes id and every message after it. Returns false if
// id does not exist.
func (c *Conversation) TruncateThrough(id MessageID) bool {
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = c.messages[:i]
			c.touch()
			return true
		}
	}
	return false
}

// RestoreMessage appends msg verbatim, bypassing InsertMessage's id
// allocation and segment coalescing, and advances nextMessageID past
// msg.ID if needed. Used exclusively by the persistence layer when
// rebuilding a Conversation from its serialized form, where ids and
// timestamps must survive the round trip exactly (spec §8 "Round-trip"
// property).
func (c *Conversation) RestoreMessage(msg Message) {
	m := msg
	c.messages = append(c.messages, &m)
	if m.ID >= c.nextMessageID {
		c.nextMessageID = m.ID + 1
	}
	c.touch()
}

// UpdateTokenUsage pushes delta into the per-request history and
// componentwise-adds it into the cumulative total (§3 invariant:
// cumulative_usage == sum(per_request_usage)).
func (c *Conversation) UpdateTokenUsage(delta TokenUsage) {
	c.perRequestUsage = append(c.perRequestUsage, delta)
	c.cumulativeUsage = c.cumulativeUsage.Add(delta)
	now := time.Now()
	c.lastChunkAt = &now
}

// ProviderMessage is the rendered, provider-agnostic shape a Conversation
// produces for the next request; provider adapters translate it into
// their own wire format.
type ProviderMessage struct {
	Role       Role
	Segments   []MessageSegment
	ToolUseID  string
	IsError    bool
}

// ToModelMessages renders the transcript for the next provider request in
// strict insertion order. Tool-role messages are converted to the
// provider's tool-result envelope at the adapter layer, not to plain text;
// here they retain their ToolUseID/IsError so the adapter can do so.
func (c *Conversation) ToModelMessages() []ProviderMessage {
	out := make([]ProviderMessage, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, ProviderMessage{
			Role:      m.Role,
			Segments:  m.Segments,
			ToolUseID: m.ToolUseID,
			IsError:   m.IsError,
		})
	}
	return out
}
