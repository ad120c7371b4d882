package llm

import (
	"strconv"
	"strings"

	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/prompt"
)

const SystemInstruction = `You are an intelligent document assistant that helps users find information from PDF documents.
You have access to content extracted from PDFs including text, tables, and images (via OCR).

Guidelines:
1. Always base your answers on the provided context
2. If information is from a table, format it clearly
3. If information is from an image (OCR), mention this
4. Be precise and cite the page numbers when relevant
5. If you don't have enough context, say so clearly
6. Maintain a helpful and conversational tone
7. For complex queries, break down your answer into clear sections`

const answerGuidelines = `Please provide a comprehensive and accurate answer based on the context provided.
If the context includes tables, present the data clearly.
If the context includes image content (OCR), mention that information was extracted from images.
If you cannot find relevant information in the context, please say so clearly.`

// NewRequest renders a prompt context: prior turns become chat messages,
// the sources and the question form the final user message.
func NewRequest(c prompt.Context) Request {
	messages := make([]Message, 0, len(c.History)+1)
	for _, turn := range c.History {
		role := RoleUser
		if turn.Speaker == conversation.SpeakerAssistant {
			role = RoleAssistant
		}

		messages = append(messages, Message{role, turn.Text})
	}

	messages = append(messages, Message{RoleUser, RenderContext(c)})

	return Request{
		System:   SystemInstruction,
		Messages: messages,
	}
}

func RenderContext(c prompt.Context) string {
	var sb strings.Builder

	sb.WriteString("CONTEXT FROM DOCUMENTS:\n")
	for _, s := range c.Sources {
		sb.WriteString("\nSOURCE ")
		sb.WriteString(strconv.Itoa(s.Rank))
		sb.WriteString(" (Page ")
		sb.WriteString(strconv.Itoa(s.PageNumber))
		sb.WriteString(", Type: ")
		sb.WriteString(typeLabel(s.ChunkType))
		if s.DocumentName != "" {
			sb.WriteString(", Document: ")
			sb.WriteString(s.DocumentName)
		}
		sb.WriteString("):\n")
		sb.WriteString(s.Content)
		sb.WriteString("\n")
	}

	sb.WriteString("\nUSER QUESTION: ")
	sb.WriteString(c.Question)
	sb.WriteString("\n\n")
	sb.WriteString(answerGuidelines)

	return sb.String()
}

func typeLabel(t document.ChunkType) string {
	if t == document.ChunkTypeImageOCR {
		return "image (OCR)"
	}

	return string(t)
}
