package historystore

import "encoding/json"

// serializedRecentOpen is the wire form of one EntryID (spec §6.3). Its
// UnmarshalJSON returns a sentinel "skip" marker rather than an error on
// an unrecognized kind, directly mirroring the Rust source's log_err()
// skip-and-continue pattern in load_recently_opened_entries, so that a
// future entry kind this binary doesn't understand is dropped instead of
// failing the whole load.
type serializedRecentOpen struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id,omitempty"`
	TextThreadPath string `json:"text_thread_path,omitempty"`
	skip           bool
}

func (s *serializedRecentOpen) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind           string `json:"kind"`
		ConversationID string `json:"conversation_id,omitempty"`
		TextThreadPath string `json:"text_thread_path,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case string(EntryConversation), string(EntryTextThread):
		s.Kind = raw.Kind
		s.ConversationID = raw.ConversationID
		s.TextThreadPath = raw.TextThreadPath
	default:
		s.skip = true
	}
	return nil
}

func serializeRecentlyOpened(ids []EntryID) ([]byte, error) {
	out := make([]serializedRecentOpen, 0, len(ids))
	for _, id := range ids {
		out = append(out, serializedRecentOpen{
			Kind:           string(id.Kind),
			ConversationID: id.ConversationID,
			TextThreadPath: id.TextThreadPath,
		})
	}
	return json.Marshal(out)
}

func deserializeRecentlyOpened(data []byte) ([]EntryID, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []serializedRecentOpen
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	ids := make([]EntryID, 0, len(raw))
	for _, r := range raw {
		if r.skip {
			continue
		}
		ids = append(ids, EntryID{
			Kind:           EntryKind(r.Kind),
			ConversationID: r.ConversationID,
			TextThreadPath: r.TextThreadPath,
		})
		if len(ids) >= MaxRecentEntries {
			break
		}
	}
	return ids, nil
}
