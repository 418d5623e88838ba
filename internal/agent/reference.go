package agent

import (
	"regexp"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

// generatedImagePattern finds a markdown image link in an assistant reply.
var generatedImagePattern = regexp.MustCompile(`!\[.*?\]\((https?://.*?)\)`)

// ResolveReference picks the image a vision agent works on: the first image
// attached to the current turn, otherwise the newest earlier turn that either
// links a generated image (assistant) or carries an image attachment (user).
func ResolveReference(attachments []chat.Attachment, history []chat.Turn) (string, bool) {
	if url, ok := firstImage(attachments); ok {
		return url, true
	}

	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		switch turn.Role {
		case chat.RoleAssistant:
			if m := generatedImagePattern.FindStringSubmatch(turn.Text); m != nil && m[1] != "" {
				return m[1], true
			}
		case chat.RoleUser:
			atts, err := turn.DecodeAttachments()
			if err != nil {
				continue
			}
			if url, ok := firstImage(atts); ok {
				return url, true
			}
		}
	}
	return "", false
}

func firstImage(attachments []chat.Attachment) (string, bool) {
	for _, att := range attachments {
		if att.IsImage() {
			return att.URL, true
		}
	}
	return "", false
}
