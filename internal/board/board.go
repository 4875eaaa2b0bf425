package board

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
)

//go:embed sample.json
var sampleJSON []byte

// Build validates a question set and turns it into a board. Every clue gets a fresh id and starts unused.
func Build(qs domain.QuestionSet) ([]domain.Category, error) {
	if err := Validate(qs); err != nil {
		return nil, err
	}

	b := make([]domain.Category, 0, len(qs.Categories))
	for _, c := range qs.Categories {
		clues := make([]domain.Clue, 0, len(c.Clues))
		for _, q := range c.Clues {
			cl := domain.Clue{
				ID:           uuid.NewString(),
				Value:        *q.Value,
				Question:     q.Question,
				CorrectIndex: q.CorrectIndex,
			}
			copy(cl.Choices[:], q.Choices)
			clues = append(clues, cl)
		}

		b = append(b, domain.Category{
			Title: c.Title,
			Clues: clues,
		})
	}

	return b, nil
}

// Validate checks the structural completeness of a question set.
func Validate(qs domain.QuestionSet) error {
	if len(qs.Categories) == 0 {
		return invalid("question set must include categories")
	}

	for i, c := range qs.Categories {
		if c.Title == "" || c.Clues == nil {
			return invalid("category %d is missing title or clues", i+1)
		}

		for j, q := range c.Clues {
			if q.Value == nil {
				return invalid("category %d, clue %d missing value", i+1, j+1)
			}
			if q.Question == "" || len(q.Choices) != domain.ChoiceCount {
				return invalid("category %d, clue %d invalid choices", i+1, j+1)
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= domain.ChoiceCount {
				return invalid("category %d, clue %d invalid correctIndex", i+1, j+1)
			}
		}
	}

	return nil
}

// Parse decodes a raw question set document and builds the board from it.
func Parse(raw []byte) ([]domain.Category, error) {
	var qs domain.QuestionSet
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question set is not valid JSON"),
			errors.WithCause(err))
	}

	return Build(qs)
}

// Sample returns a freshly built copy of the bundled sample board.
func Sample() []domain.Category {
	b, err := Parse(sampleJSON)
	if err != nil {
		panic(fmt.Sprintf("board: invalid sample question set: %v", err))
	}

	return b
}

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeInvalidArgument, errors.WithMessagef(format, args...))
}
