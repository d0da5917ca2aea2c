package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"questgen/internal/config"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSanitizer() *ResponseSanitizer {
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewResponseSanitizer(logger)
}

func TestResponseSanitizer_ParseRecoversMalformedVariants(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	expected := map[string]interface{}{
		"answer":           "2",
		"solution":         "ok",
		"difficulty_level": "Easy",
	}

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "already valid JSON",
			raw:  `{"answer":"2","solution":"ok","difficulty_level":"Easy"}`,
		},
		{
			name: "valid JSON with surrounding whitespace",
			raw:  "\n  {\"answer\":\"2\",\"solution\":\"ok\",\"difficulty_level\":\"Easy\"}  \n",
		},
		{
			name: "wrapped in json code fence",
			raw:  "```json\n{\"answer\":\"2\",\"solution\":\"ok\",\"difficulty_level\":\"Easy\"}\n```",
		},
		{
			name: "wrapped in bare code fence",
			raw:  "```\n{\"answer\":\"2\",\"solution\":\"ok\",\"difficulty_level\":\"Easy\"}\n```",
		},
		{
			name: "trailing comma before closing brace",
			raw:  `{"answer":"2","solution":"ok","difficulty_level":"Easy",}`,
		},
		{
			name: "missing final closing brace",
			raw:  `{"answer":"2","solution":"ok","difficulty_level":"Easy"`,
		},
		{
			name: "trailing comma and missing final brace",
			raw:  `{"answer":"2","solution":"ok","difficulty_level":"Easy",`,
		},
		{
			name: "explanatory prose around the object",
			raw:  "Here is the generated question:\n{\"answer\":\"2\",\"solution\":\"ok\",\"difficulty_level\":\"Easy\"}\nHope this helps!",
		},
		{
			name: "fenced with prose before the fence",
			raw:  "Sure! ```json\n{\"answer\":\"2\",\"solution\":\"ok\",\"difficulty_level\":\"Easy\"}\n```",
		},
		{
			name: "array-wrapped single object",
			raw:  `[{"answer":"2","solution":"ok","difficulty_level":"Easy"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := sanitizer.Parse(ctx, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, expected, parsed)
		})
	}
}

func TestResponseSanitizer_ParseMatchesDirectParseOnValidInput(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	raw := `{"question_statement":"What is 2+2?","options":["1","2","3","4"],"answer":"3","solution":"2+2=4","difficulty_level":"Easy"}`

	var direct map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &direct))

	parsed, err := sanitizer.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, direct, parsed)
}

func TestResponseSanitizer_EscapesLiteralNewlinesInsideStrings(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	raw := "{\"answer\":\"2\",\n\"solution\":\"step one\nstep two\tdone\",\"difficulty_level\":\"Easy\"}"

	parsed, err := sanitizer.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "step one\nstep two\tdone", parsed["solution"])
	assert.Equal(t, "2", parsed["answer"])
}

func TestResponseSanitizer_PreservesEscapedQuotesInsideStrings(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	raw := "```json\n{\"answer\":\"2\",\"solution\":\"the \\\"best\\\" answer\",\"difficulty_level\":\"Easy\"}\n```"

	parsed, err := sanitizer.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, `the "best" answer`, parsed["solution"])
}

func TestResponseSanitizer_EmptyArrayIsParseError(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	parsed, err := sanitizer.Parse(ctx, `[]`)
	assert.Nil(t, parsed)
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeAIResponseInvalid, contextutils.GetErrorCode(err))
	assert.Contains(t, err.Error(), "empty array")
}

func TestResponseSanitizer_NonObjectValuesAreParseErrors(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare string", raw: `"just some text"`},
		{name: "bare number", raw: `42`},
		{name: "array of strings", raw: `["a","b"]`},
		{name: "null", raw: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := sanitizer.Parse(ctx, tt.raw)
			assert.Nil(t, parsed)
			require.Error(t, err)
			assert.Equal(t, contextutils.ErrorCodeAIResponseInvalid, contextutils.GetErrorCode(err))
		})
	}
}

func TestResponseSanitizer_EmptyResponseIsParseError(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "\n\t"} {
		parsed, err := sanitizer.Parse(ctx, raw)
		assert.Nil(t, parsed)
		require.Error(t, err)
		assert.Equal(t, contextutils.ErrorCodeAIResponseInvalid, contextutils.GetErrorCode(err))
	}
}

func TestResponseSanitizer_UnparseableCarriesTruncatedExcerpt(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	head := strings.Repeat("a", parseErrorExcerptLength)
	tail := "TAIL-MARKER-" + strings.Repeat("b", 100)
	raw := head + tail

	parsed, err := sanitizer.Parse(ctx, raw)
	assert.Nil(t, parsed)
	require.Error(t, err)

	var appErr *contextutils.AppError
	require.True(t, contextutils.AsError(err, &appErr))
	assert.Equal(t, contextutils.ErrorCodeAIResponseInvalid, appErr.Code)
	assert.Contains(t, appErr.Details, head)
	assert.NotContains(t, appErr.Details, "TAIL-MARKER-")
}

func TestResponseSanitizer_GivesUpAfterBoundedAttempts(t *testing.T) {
	sanitizer := newTestSanitizer()
	ctx := context.Background()

	// Braces are balanced but the content can never become JSON
	parsed, err := sanitizer.Parse(ctx, "{this is not json at all}")
	assert.Nil(t, parsed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repair attempts")
}
