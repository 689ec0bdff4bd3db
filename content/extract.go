package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence. Models routinely
// wrap the requested bare JSON array in ```json fences despite the prompt.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

// UnmarshalArray decodes a JSON array out of raw model output into dest.
// It tries the fence-stripped text directly, then falls back to the
// outermost [..] slice for output with leading or trailing prose.
func UnmarshalArray(raw string, dest any) error {
	cleaned := StripFences(raw)

	if err := json.Unmarshal([]byte(cleaned), dest); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON array found in model output")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), dest); err != nil {
		return fmt.Errorf("decode model output array: %w", err)
	}
	return nil
}

// ParseQuestions extracts, validates, and trims quiz questions from raw
// model output. Items that fail validation are dropped; at most limit
// questions are returned (limit <= 0 means no trim).
func ParseQuestions(raw string, limit int) ([]QuizQuestion, error) {
	var questions []QuizQuestion
	if err := UnmarshalArray(raw, &questions); err != nil {
		return nil, err
	}
	return ValidateQuestions(questions, limit), nil
}

// ValidateQuestions normalizes and filters generated questions: empty
// question text is dropped, multiple_choice must carry at least 4 options
// (extra options trimmed), true_false is normalized to ["True", "False"],
// and out-of-range correct indexes are clamped to 0.
func ValidateQuestions(questions []QuizQuestion, limit int) []QuizQuestion {
	if limit <= 0 {
		limit = len(questions)
	}

	valid := make([]QuizQuestion, 0, limit)
	for _, q := range questions {
		if len(valid) >= limit {
			break
		}

		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}

		switch normalizeQuestionType(q.Type, q.Options) {
		case "true_false":
			if !isTrueFalseOptions(q.Options) {
				continue
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				q.CorrectIndex = 0
			}
			if strings.EqualFold(strings.TrimSpace(q.Options[q.CorrectIndex]), "false") {
				q.CorrectIndex = 1
			} else {
				q.CorrectIndex = 0
			}
			q.Type = "true_false"
			q.Options = []string{"True", "False"}
		case "multiple_choice":
			if len(q.Options) < 4 {
				continue
			}
			if len(q.Options) > 4 {
				q.Options = q.Options[:4]
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				q.CorrectIndex = 0
			}
			q.Type = "multiple_choice"
		default:
			continue
		}

		valid = append(valid, q)
	}
	return valid
}

// ParseFlashcards extracts and validates flashcards from raw model output.
func ParseFlashcards(raw string, limit int) ([]Flashcard, error) {
	var cards []Flashcard
	if err := UnmarshalArray(raw, &cards); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = len(cards)
	}
	valid := make([]Flashcard, 0, limit)
	for _, c := range cards {
		if len(valid) >= limit {
			break
		}
		c.Front = strings.TrimSpace(c.Front)
		c.Back = strings.TrimSpace(c.Back)
		if c.Front == "" || c.Back == "" {
			continue
		}
		if c.Difficulty < 1 || c.Difficulty > 3 {
			c.Difficulty = 2
		}
		valid = append(valid, c)
	}
	return valid, nil
}

func normalizeQuestionType(v string, options []string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "multiple_choice", "multiple-choice", "mcq", "multiplechoice":
		return "multiple_choice"
	case "true_false", "true-false", "truefalse", "boolean":
		return "true_false"
	case "":
		if isTrueFalseOptions(options) {
			return "true_false"
		}
		return "multiple_choice"
	default:
		return ""
	}
}

func isTrueFalseOptions(options []string) bool {
	if len(options) != 2 {
		return false
	}
	a := strings.TrimSpace(strings.ToLower(options[0]))
	b := strings.TrimSpace(strings.ToLower(options[1]))
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}
