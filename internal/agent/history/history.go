// Package history rebuilds provider messages from stored conversation turns.
package history

import (
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

const (
	// emptyText stands in for an empty user turn; some providers reject empty content.
	emptyText = " "
	// imageOnlyText accompanies images sent without any text.
	imageOnlyText = "请参考图片处理"
)

// Build returns the system prompt followed by one message per turn, in the
// given order, and finally the current turn when it is not nil. Turns are
// never reordered or dropped; a turn whose stored attachments cannot be
// decoded is sent as plain text.
func Build(systemPrompt string, turns []chat.Turn, current *chat.Turn, logger zerolog.Logger) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))

	for _, turn := range turns {
		messages = append(messages, Message(turn, logger))
	}
	if current != nil {
		messages = append(messages, Message(*current, logger))
	}
	return messages
}

// Message converts a single turn.
func Message(turn chat.Turn, logger zerolog.Logger) *schema.Message {
	if turn.Role == chat.RoleAssistant {
		return schema.AssistantMessage(turn.Text, nil)
	}

	if !turn.HasAttachments() {
		return schema.UserMessage(textOr(turn.Text, emptyText))
	}

	attachments, err := turn.DecodeAttachments()
	if err != nil {
		logger.Warn().
			Err(err).
			Str("turn_id", turn.ID).
			Str("conversation_id", turn.ConversationID).
			Msg("skipping undecodable attachments")
		return schema.UserMessage(textOr(turn.Text, emptyText))
	}

	return &schema.Message{
		Role:         schema.User,
		MultiContent: userParts(turn.Text, attachments),
	}
}

func userParts(text string, attachments []chat.Attachment) []schema.ChatMessagePart {
	parts := make([]schema.ChatMessagePart, 0, len(attachments)+1)
	for _, att := range attachments {
		if !att.IsImage() {
			continue
		}
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: att.URL},
		})
	}
	return append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: textOr(text, imageOnlyText),
	})
}

func textOr(text, fallback string) string {
	if text == "" {
		return fallback
	}
	return text
}
