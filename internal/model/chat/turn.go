package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Role of a turn author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment describes a file the user sent with a turn. Only URL-bearing
// images are forwarded to the model.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"size,omitempty"`
	URL       string `json:"url,omitempty"`
}

// IsImage reports whether the attachment is an image that can be referenced by URL.
func (a Attachment) IsImage() bool {
	return a.URL != "" && strings.HasPrefix(a.MimeType, "image/")
}

// Turn is one stored message of a conversation. Attachments are kept in
// their stored JSON form so that a damaged record only affects its own turn.
type Turn struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Role           Role            `json:"role"`
	Text           string          `json:"text"`
	AttachmentsRaw json.RawMessage `json:"attachments,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewTurn builds a turn and encodes its attachments.
func NewTurn(role Role, text string, attachments []Attachment) (Turn, error) {
	turn := Turn{Role: role, Text: text}
	if len(attachments) == 0 {
		return turn, nil
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return Turn{}, err
	}
	turn.AttachmentsRaw = raw
	return turn, nil
}

// HasAttachments reports whether any attachment metadata was stored.
func (t Turn) HasAttachments() bool {
	raw := strings.TrimSpace(string(t.AttachmentsRaw))
	return raw != "" && raw != "null" && raw != "[]"
}

// DecodeAttachments parses the stored attachment list.
func (t Turn) DecodeAttachments() ([]Attachment, error) {
	if !t.HasAttachments() {
		return nil, nil
	}
	var out []Attachment
	if err := json.Unmarshal(t.AttachmentsRaw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
