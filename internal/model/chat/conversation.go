package chat

import "time"

// Conversation groups the turns one user exchanged with one tool.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ToolID    string    `json:"toolId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Context identifies the request an agent is serving. It is never persisted.
type Context struct {
	ConversationID string
	ToolID         string
	UserID         string
}

// AuditEntry records one use of a tool.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionToolUse is the audit action written after every chat stream.
const ActionToolUse = "TOOL_USE"
