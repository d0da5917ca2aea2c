package services

import (
	"fmt"
	"strconv"
	"strings"

	"questgen/internal/models"
)

// AnswerValidator checks a generated answer against the format contract
// of its question type. Validation is a pure pass/fail decision with a
// reason string for diagnostics; malformed input fails, it never errors.
type AnswerValidator struct{}

// NewAnswerValidator creates a validator.
func NewAnswerValidator() *AnswerValidator {
	return &AnswerValidator{}
}

// Validate reports whether answer satisfies the rules for questionType.
//
//   - MCQ: exactly one option index, in range for options
//   - MSQ: one or more option indices, all in range
//   - NAT: a parseable floating-point number
//   - SUB: any non-blank text
//
// Option indices are comma-separated decimal digits; tokens that are not
// plain digits are ignored, mirroring upstream behavior. Duplicate MSQ
// indices are accepted.
func (v *AnswerValidator) Validate(questionType models.QuestionType, options []string, answer string) (bool, string) {
	switch questionType {
	case models.MCQ:
		indices := parseAnswerIndices(answer)
		if len(indices) != 1 {
			return false, fmt.Sprintf("MCQ requires exactly one answer index, got %d", len(indices))
		}
		if !indicesInRange(indices, len(options)) {
			return false, fmt.Sprintf("MCQ answer index out of range for %d options", len(options))
		}
		return true, ""

	case models.MSQ:
		indices := parseAnswerIndices(answer)
		if len(indices) < 1 {
			return false, "MSQ requires at least one answer index"
		}
		if !indicesInRange(indices, len(options)) {
			return false, fmt.Sprintf("MSQ answer index out of range for %d options", len(options))
		}
		return true, ""

	case models.NAT:
		if _, err := strconv.ParseFloat(strings.TrimSpace(answer), 64); err != nil {
			return false, "NAT answer must be numerical"
		}
		return true, ""

	case models.SUB:
		if strings.TrimSpace(answer) == "" {
			return false, "SUB answer must be non-empty"
		}
		return true, ""
	}

	return false, fmt.Sprintf("unknown question type %q", questionType)
}

// parseAnswerIndices extracts the digit-only tokens from a
// comma-separated answer string.
func parseAnswerIndices(answer string) []int {
	var indices []int
	for _, token := range strings.Split(answer, ",") {
		token = strings.TrimSpace(token)
		if token == "" || !isAllDigits(token) {
			continue
		}
		index, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		indices = append(indices, index)
	}
	return indices
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func indicesInRange(indices []int, optionCount int) bool {
	for _, index := range indices {
		if index < 0 || index >= optionCount {
			return false
		}
	}
	return true
}
