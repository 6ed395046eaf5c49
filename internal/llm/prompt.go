package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Task modes understood by BuildMessages.
const (
	ModeExplain  = "explain"
	ModeELI5     = "eli5"
	ModeFollowup = "followup"
)

// Task is a simplification request in model-neutral form.
type Task struct {
	Mode         string
	Text         string
	OriginalText string
	History      []Message
	Scope        string
	ScopeContext string
	ChapterTitle string
}

const systemPrompt = "You are a patient reading companion inside an e-reader. " +
	"You explain passages the reader highlights. Answer in plain language, " +
	"use short paragraphs or bullets, and never invent facts about the book that are not in the provided text."

func clipText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// BuildMessages turns a task into the system prompt and chat transcript sent
// to the model.
func BuildMessages(task Task) (string, []Message, error) {
	text := clipText(task.Text, maxSelectionChars)
	if text == "" {
		return "", nil, fmt.Errorf("text cannot be empty")
	}
	switch task.Mode {
	case ModeExplain:
		return systemPrompt, []Message{{Role: "user", Content: buildExplainPrompt(text)}}, nil
	case ModeELI5:
		return systemPrompt, []Message{{Role: "user", Content: buildELI5Prompt(text)}}, nil
	case ModeFollowup:
		return buildFollowupSystem(task), buildFollowupTranscript(task.History, text), nil
	default:
		return "", nil, fmt.Errorf("unsupported mode %q", task.Mode)
	}
}

func buildExplainPrompt(text string) string {
	if isSingleWord(text) {
		return "Define the word \"" + text + "\" as it would be used in a book. " +
			"Give the part of speech, a one-sentence definition and a short example."
	}
	return "Explain the following passage in clearer, modern language. " +
		"Keep the meaning intact and mention any idioms or references the reader may miss.\n\n" +
		"Passage:\n" + text
}

func buildELI5Prompt(text string) string {
	return "Explain the following text as if to a curious ten-year-old. " +
		"Use simple words, short sentences and one everyday comparison.\n\n" +
		"Text:\n" + text
}

func buildFollowupSystem(task Task) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nThe conversation is about this highlighted passage:\n")
	b.WriteString(clipText(task.OriginalText, maxSelectionChars))
	if title := strings.TrimSpace(task.ChapterTitle); title != "" {
		b.WriteString("\n\nChapter: ")
		b.WriteString(title)
	}
	scopeContext := clipText(task.ScopeContext, maxContextChars)
	if scopeContext != "" {
		b.WriteString("\n\n")
		b.WriteString(scopeLabel(task.Scope))
		b.WriteString(" text for reference:\n")
		b.WriteString(scopeContext)
	}
	return b.String()
}

func buildFollowupTranscript(history []Message, question string) []Message {
	transcript := make([]Message, 0, len(history)+1)
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		transcript = append(transcript, Message{Role: role, Content: content})
	}
	return append(transcript, Message{Role: "user", Content: question})
}

func scopeLabel(scope string) string {
	switch scope {
	case "chapter":
		return "Current chapter"
	case "book":
		return "Book"
	default:
		return "Surrounding"
	}
}

func isSingleWord(text string) bool {
	return !whitespaceRe.MatchString(strings.TrimSpace(text))
}
