// Package content defines the fixed record shapes the generator produces and
// the prompt/extraction logic that maps raw model output onto them.
package content

import (
	"time"

	"github.com/google/uuid"
)

// Kind routes a generation request to its prompt builder and parser.
type Kind string

const (
	KindNote        Kind = "note"
	KindQuiz        Kind = "quiz"
	KindFlashcards  Kind = "flashcards"
	KindTranslation Kind = "translation"
)

// Valid reports whether k names a supported content kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindQuiz, KindFlashcards, KindTranslation:
		return true
	}
	return false
}

// QuizQuestion is one generated MCQ or true/false item. The question text is
// the dedup key: two items with identical question text are the same item.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Type         string   `json:"type"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
	Hint         string   `json:"hint,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Topic        string   `json:"topic,omitempty"`
}

// DedupKey identifies a question across sub-batches.
func (q QuizQuestion) DedupKey() string { return q.Question }

// Flashcard is one generated front/back card.
type Flashcard struct {
	Front      string  `json:"front"`
	Back       string  `json:"back"`
	Difficulty int     `json:"difficulty"`
	Mnemonic   *string `json:"mnemonic,omitempty"`
	Example    *string `json:"example,omitempty"`
	Topic      string  `json:"topic,omitempty"`
}

// Record is the persisted envelope around one generation result. Payload is
// the kind-specific JSON document (plain text for notes and translations, an
// item array for quizzes and flashcards).
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Topic      string    `json:"topic"`
	PromptHash string    `json:"prompt_hash"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRecord builds a record with a fresh ID and timestamp.
func NewRecord(kind Kind, topic, promptHash string, payload []byte) *Record {
	return &Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		Topic:      topic,
		PromptHash: promptHash,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
}
