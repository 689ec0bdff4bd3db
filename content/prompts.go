package content

import (
	"fmt"
	"strings"
)

// PromptInput carries everything a prompt builder needs for one request.
type PromptInput struct {
	Kind       Kind
	Topic      string
	Source     string // source material the content is generated from
	Count      int    // item count for quiz/flashcard kinds
	Difficulty string
	Language   string // target language for translations
	Audience   string
}

// BuildPrompt renders the prompt for one generation request. Quiz and
// flashcard prompts demand a bare JSON array so the extraction layer has a
// fighting chance; notes and translations are free-form text.
func BuildPrompt(in PromptInput) string {
	switch in.Kind {
	case KindQuiz:
		return buildQuizPrompt(in)
	case KindFlashcards:
		return buildFlashcardPrompt(in)
	case KindTranslation:
		return buildTranslationPrompt(in)
	default:
		return buildNotePrompt(in)
	}
}

func buildNotePrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are an expert educational content analyst. Create structured study notes on the following material.\n\n")
	b.WriteString("Format: Markdown with clear section headings and concise bullet points.\n")
	if in.Audience != "" {
		fmt.Fprintf(&b, "Target Audience: write for a %s level audience.\n", in.Audience)
	}
	if in.Topic != "" {
		fmt.Fprintf(&b, "Focus topic: %s.\n", in.Topic)
	}
	b.WriteString("\n---CONTENT---\n")
	b.WriteString(in.Source)
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildQuizPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are an expert educational assessor. Generate quiz questions based on the following content.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	fmt.Fprintf(&b, "Generate exactly %d questions.\n", in.Count)

	difficulty := in.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	fmt.Fprintf(&b, "Difficulty: %s\n", difficulty)
	b.WriteString("Set every item's difficulty field exactly to this requested difficulty value.\n")
	if in.Topic != "" {
		fmt.Fprintf(&b, "Every question MUST target the topic %q and set the topic field accordingly.\n", in.Topic)
	}

	b.WriteString(`
JSON schema per question:
{"question": "string", "type": "multiple_choice"|"true_false", "options": ["string"], "correct_index": int, "explanation": "string", "hint": "string", "difficulty": "easy"|"medium"|"hard", "topic": "string"}

For multiple_choice: exactly 4 options. For true_false: exactly 2 options ["True", "False"].
`)

	b.WriteString("\n---CONTENT---\n")
	b.WriteString(in.Source)
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildFlashcardPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are an expert flashcard creator. Generate high-quality flashcards from the content below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	fmt.Fprintf(&b, "Generate exactly %d flashcards.\n\n", in.Count)

	b.WriteString(`Rules:
- Front must be under 15 words
- Back must be under 60 words and self-contained
- No two cards may test the same concept

JSON schema per card:
{"front": "string", "back": "string", "difficulty": 1|2|3, "mnemonic": "string|null", "example": "string|null", "topic": "string"}
`)

	b.WriteString("\n---CONTENT---\n")
	b.WriteString(in.Source)
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildTranslationPrompt(in PromptInput) string {
	var b strings.Builder

	language := in.Language
	if language == "" {
		language = "English"
	}
	fmt.Fprintf(&b, "Translate the following educational content into %s.\n", language)
	b.WriteString("Preserve formatting, terminology, and factual content exactly. Return the translation only, without commentary.\n")
	b.WriteString("\n---CONTENT---\n")
	b.WriteString(in.Source)
	b.WriteString("\n---END---\n")

	return b.String()
}
