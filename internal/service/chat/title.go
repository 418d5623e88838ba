package chat

import "strings"

const (
	titleMaxRunes = 50
	titleMinBreak = 20
	// UntitledUpload names conversations started with attachments only.
	UntitledUpload = "文件上传"
)

var titleBreakPoints = []rune{'。', '，', '？', '！', '.', ',', '?', '!', ' '}

// Title derives a conversation title from the first user message. Text
// longer than 50 characters is cut after the last punctuation or space found
// past the 20th character, or else truncated to 47 characters plus "...".
func Title(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return UntitledUpload
	}

	runes := []rune(cleaned)
	if len(runes) <= titleMaxRunes {
		return cleaned
	}

	for _, bp := range titleBreakPoints {
		if idx := lastIndexRune(runes[:titleMaxRunes+1], bp); idx > titleMinBreak {
			return strings.TrimSpace(string(runes[:idx+1]))
		}
	}
	return string(runes[:titleMaxRunes-3]) + "..."
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
