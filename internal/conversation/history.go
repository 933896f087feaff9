// Package conversation folds chat history into a single question.
package conversation

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered list of chat turns. The zero value is empty and ready to use.
type History struct {
	messages []Message
}

// FromMessages builds a history from prior turns, skipping blank ones.
func FromMessages(msgs []Message) *History {
	h := &History{}
	for _, m := range msgs {
		h.Append(m.Role, m.Content)
	}
	return h
}

// Append records a turn. Blank content is ignored.
func (h *History) Append(role Role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	h.messages = append(h.messages, Message{Role: role, Content: content})
}

func (h *History) Messages() []Message {
	return append([]Message(nil), h.messages...)
}

func (h *History) Len() int { return len(h.messages) }

func (h *History) Clear() { h.messages = nil }

// BuildQuery renders the history followed by prompt. With no history the
// prompt is returned unchanged.
func (h *History) BuildQuery(prompt string) string {
	if len(h.messages) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, m := range h.messages {
		if m.Role == RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("AI: ")
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nBased on the conversation and the document, answer the latest question:\n")
	b.WriteString(prompt)
	return b.String()
}
