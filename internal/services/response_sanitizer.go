package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// Total parse attempts: one direct parse plus two cleaned re-parses.
	sanitizerMaxAttempts = 3

	// How much of the raw response a ParseError carries for diagnostics.
	parseErrorExcerptLength = 200
)

var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

// ResponseSanitizer recovers a single JSON object from upstream response
// text that is frequently wrapped in markdown, padded with prose, or
// truncated mid-object.
type ResponseSanitizer struct {
	logger *observability.Logger
}

// NewResponseSanitizer creates a sanitizer.
func NewResponseSanitizer(logger *observability.Logger) *ResponseSanitizer {
	return &ResponseSanitizer{logger: logger}
}

// Parse coerces raw response text into a field map. It tries a direct
// parse first, then up to two rounds of textual repair. A response whose
// top level is an array is treated as its first element; upstream is
// known to occasionally wrap the object that way. Failure returns an
// AI_RESPONSE_INVALID error carrying a truncated excerpt of the raw text.
func (s *ResponseSanitizer) Parse(ctx context.Context, raw string) (result0 map[string]interface{}, err error) {
	_, span := observability.TraceGenerationFunction(ctx, "sanitize_response",
		attribute.Int("response.length", len(raw)),
	)
	defer observability.FinishSpan(span, &err)

	text := strings.TrimSpace(raw)
	if text == "" {
		span.SetAttributes(attribute.String("sanitize.result", "empty_response"))
		return nil, s.parseError(raw, "upstream returned empty response", nil)
	}

	var lastErr error
	for attempt := 0; attempt < sanitizerMaxAttempts; attempt++ {
		if attempt > 0 {
			text = s.clean(text)
		}

		var value interface{}
		if jsonErr := json.Unmarshal([]byte(text), &value); jsonErr != nil {
			lastErr = jsonErr
			continue
		}

		answer, shapeErr := answerObject(value)
		if shapeErr != nil {
			span.SetAttributes(
				attribute.String("sanitize.result", "wrong_shape"),
				attribute.Int("sanitize.attempts", attempt+1),
			)
			return nil, s.parseError(raw, shapeErr.Error(), shapeErr)
		}

		span.SetAttributes(
			attribute.String("sanitize.result", "success"),
			attribute.Int("sanitize.attempts", attempt+1),
		)
		return answer, nil
	}

	s.logger.Warn(ctx, "Response unparseable after repair attempts", map[string]interface{}{
		"attempts":        sanitizerMaxAttempts,
		"response_length": len(raw),
	})
	span.SetAttributes(attribute.String("sanitize.result", "unparseable"))
	return nil, s.parseError(raw, "response is not valid JSON after repair attempts", lastErr)
}

// clean applies one round of textual repair: drop code fences, normalize
// control characters, slice to the outermost object, remove trailing
// commas, and close a truncated object.
func (s *ResponseSanitizer) clean(text string) string {
	text = strings.TrimSpace(text)

	// Markdown code fences, with or without a language tag
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	text = normalizeControlCharacters(text)

	// Slice to the span from the first '{' to the last '}'. A missing
	// closing brace leaves the tail in place for the append below.
	start := strings.Index(text, "{")
	if start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		} else {
			text = text[start:]
		}
	}

	text = trailingCommaPattern.ReplaceAllString(text, "$1")

	if !strings.HasSuffix(strings.TrimSpace(text), "}") {
		text += "}"
	}

	return text
}

// normalizeControlCharacters strips control characters from the text,
// except inside string literals where literal newlines, tabs, and
// carriage returns are escaped instead: upstream emits multi-line
// solution text as raw newlines inside the JSON string body.
func normalizeControlCharacters(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for _, r := range text {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}

		switch {
		case inString && r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteString(`\n`)
		case inString && r == '\t':
			b.WriteString(`\t`)
		case inString && r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			// Drop remaining control characters. Outside strings the
			// ones that matter are whitespace, which JSON does not need.
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// answerObject reduces a parsed JSON value to a single field map. A
// top-level array stands in for its first element; anything else that is
// not an object is rejected.
func answerObject(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("upstream returned an empty array")
		}
		if object, ok := v[0].(map[string]interface{}); ok {
			return object, nil
		}
		return nil, fmt.Errorf("upstream array element is not an object")
	default:
		return nil, fmt.Errorf("upstream value is not an object")
	}
}

func (s *ResponseSanitizer) parseError(raw, message string, cause error) error {
	return contextutils.NewAppErrorWithCause(
		contextutils.ErrorCodeAIResponseInvalid,
		contextutils.SeverityError,
		message,
		fmt.Sprintf("raw response prefix: %q", responseExcerpt(raw)),
		cause,
	)
}

func responseExcerpt(raw string) string {
	if len(raw) > parseErrorExcerptLength {
		return raw[:parseErrorExcerptLength]
	}
	return raw
}
