package completion

import (
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/sashabaranov/go-openai"
)

// DefaultSystemPrompt frames the model as a spoken tutor: answers are read aloud,
// so they must be short and free of markup.
const DefaultSystemPrompt = `You are a friendly, patient learning coach talking with a student by voice.
Answer in plain conversational sentences, without markdown, lists, code blocks or emoji.
Keep answers short (two to four sentences) unless the student asks for more detail.
When the student seems confused, explain with a simple example and ask one follow-up question.`

// BuildMessages assembles system instruction, windowed history and the new user message.
// Error turns are visible to the user only and never sent to the model.
func BuildMessages(systemPrompt string, history []conversation.Turn, window int, text string) []openai.ChatCompletionMessage {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	var prior []conversation.Turn
	for _, t := range history {
		if t.Error || t.Text == "" {
			continue
		}
		prior = append(prior, t)
	}
	prior = conversation.Window(prior, window)

	messages := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range prior {
		role := openai.ChatMessageRoleUser
		if t.Role == conversation.Assistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return messages
}
