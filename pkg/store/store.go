// Package store defines the keyed-byte-store persistence contract for
// Conversations (component C6 of the orchestration core). Concrete
// backends live in the boltstore and sqlitestore subpackages.
package store

import (
	"encoding/base64"
	"time"

	"github.com/arcweave/agentcore/pkg/conversation"
)

// CurrentVersion is the schema version new saves are written at (spec
// §4.6 "Versioning").
const CurrentVersion = 1

// SerializedSegment is the tagged-union wire form of a MessageSegment
// (spec §4.6).
type SerializedSegment struct {
	Kind          string  `json:"kind"` // "text", "thinking", "redacted_thinking"
	Text          string  `json:"text,omitempty"`
	Signature     *string `json:"signature,omitempty"`
	RedactedBytes string  `json:"redacted_bytes,omitempty"` // base64
}

func serializeSegment(seg conversation.MessageSegment) SerializedSegment {
	switch seg.Kind {
	case conversation.SegmentThinking:
		return SerializedSegment{Kind: "thinking", Text: seg.Text, Signature: seg.Signature}
	case conversation.SegmentRedactedThinking:
		return SerializedSegment{Kind: "redacted_thinking", RedactedBytes: base64.StdEncoding.EncodeToString(seg.Redacted)}
	default:
		return SerializedSegment{Kind: "text", Text: seg.Text}
	}
}

func deserializeSegment(s SerializedSegment) conversation.MessageSegment {
	switch s.Kind {
	case "thinking":
		return conversation.ThinkingSegment(s.Text, s.Signature)
	case "redacted_thinking":
		data, _ := base64.StdEncoding.DecodeString(s.RedactedBytes)
		return conversation.RedactedThinkingSegment(data)
	default:
		return conversation.TextSegment(s.Text)
	}
}

// SerializedMessage is the wire form of one Message (spec §4.6).
type SerializedMessage struct {
	ID        int                 `json:"id"`
	Role      string              `json:"role"`
	Segments  []SerializedSegment `json:"segments"`
	ToolUseID string              `json:"tool_use_id,omitempty"`
	IsError   bool                `json:"is_error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// SerializedTokenUsage is the wire form of conversation.TokenUsage.
type SerializedTokenUsage struct {
	Input         uint64 `json:"input"`
	Output        uint64 `json:"output"`
	CacheRead     uint64 `json:"cache_read"`
	CacheCreation uint64 `json:"cache_creation"`
}

// SerializedConversation is the full-body record a ConversationStore
// persists per conversation id (boltstore: bucket "conversations";
// sqlitestore: table conversations, column record_json).
type SerializedConversation struct {
	Version         int                    `json:"version"`
	ID              string                 `json:"id"`
	Title           string                 `json:"title,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Messages        []SerializedMessage    `json:"messages"`
	CumulativeUsage SerializedTokenUsage   `json:"cumulative_usage"`
	ModelHint       string                 `json:"model_hint,omitempty"`
}

// Summary is the cheap list-view record a ConversationStore persists per
// conversation id (boltstore: bucket "summaries" under key "conv:<id>";
// sqlitestore: table conversation_summaries).
type Summary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UpdatedAt   time.Time `json:"updated_at"`
	TokenTotal  uint64    `json:"token_total"`
}

// Serialize renders conv into its persisted form at CurrentVersion.
func Serialize(conv *conversation.Conversation, createdAt time.Time, modelHint string) SerializedConversation {
	out := SerializedConversation{
		Version:   CurrentVersion,
		ID:        string(conv.ID()),
		Title:     conv.TitleOrDefault(),
		CreatedAt: createdAt,
		UpdatedAt: conv.UpdatedAt(),
		ModelHint: modelHint,
	}
	usage := conv.CumulativeUsage()
	out.CumulativeUsage = SerializedTokenUsage{
		Input: usage.Input, Output: usage.Output,
		CacheRead: usage.CacheRead, CacheCreation: usage.CacheCreation,
	}
	for _, m := range conv.Messages() {
		sm := SerializedMessage{
			ID:        int(m.ID),
			Role:      string(m.Role),
			ToolUseID: m.ToolUseID,
			IsError:   m.IsError,
			Timestamp: m.Timestamp,
		}
		for _, seg := range m.Segments {
			sm.Segments = append(sm.Segments, serializeSegment(seg))
		}
		out.Messages = append(out.Messages, sm)
	}
	return out
}

// Deserialize rebuilds a Conversation from its persisted form, applying
// Migrate first if the stored version is older than CurrentVersion.
func Deserialize(sc SerializedConversation) (*conversation.Conversation, error) {
	sc, err := Migrate(sc)
	if err != nil {
		return nil, err
	}

	conv := conversation.New(conversation.ID(sc.ID))
	conv.SetTitle(sc.Title)
	for _, sm := range sc.Messages {
		segments := make([]conversation.MessageSegment, 0, len(sm.Segments))
		for _, s := range sm.Segments {
			segments = append(segments, deserializeSegment(s))
		}
		conv.RestoreMessage(conversation.Message{
			ID:        conversation.MessageID(sm.ID),
			Role:      conversation.Role(sm.Role),
			Segments:  segments,
			ToolUseID: sm.ToolUseID,
			IsError:   sm.IsError,
			Timestamp: sm.Timestamp,
		})
	}
	conv.UpdateTokenUsage(conversation.TokenUsage{
		Input: sc.CumulativeUsage.Input, Output: sc.CumulativeUsage.Output,
		CacheRead: sc.CumulativeUsage.CacheRead, CacheCreation: sc.CumulativeUsage.CacheCreation,
	})
	return conv, nil
}

func toSummary(sc SerializedConversation) Summary {
	return Summary{
		ID:         sc.ID,
		Title:      sc.Title,
		UpdatedAt:  sc.UpdatedAt,
		TokenTotal: sc.CumulativeUsage.Input + sc.CumulativeUsage.Output,
	}
}

// ToSummary renders conv's persisted form into its list-view Summary.
func ToSummary(sc SerializedConversation) Summary { return toSummary(sc) }

// ConversationStore is the keyed-byte-store contract of spec §4.6. Both
// boltstore and sqlitestore satisfy it.
type ConversationStore interface {
	Save(sc SerializedConversation) error
	Load(id string) (SerializedConversation, error)
	List() ([]Summary, error)
	Delete(id string) error
	Close() error
}
