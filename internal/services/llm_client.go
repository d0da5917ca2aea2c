package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"questgen/internal/config"
	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConcurrencyStats provides metrics about upstream generation concurrency
type ConcurrencyStats struct {
	ActiveRequests int   `json:"active_requests"`
	MaxConcurrent  int   `json:"max_concurrent"`
	QueuedRequests int   `json:"queued_requests"`
	TotalRequests  int64 `json:"total_requests"`
}

// geminiRequest is the generateContent request payload.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiGenerationConfig carries sampling parameters plus the structured
// output hints. responseSchema biases the model toward the expected shape
// but does not guarantee it, which is why ResponseSanitizer exists.
type geminiGenerationConfig struct {
	Temperature      float64         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// geminiResponse is the generateContent response payload.
type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiAPIError   `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// LLMClient calls the hosted Gemini-style text-generation API. It is
// credential-agnostic: the caller passes the API key per request, which
// lets GenerationService rotate keys between attempts.
type LLMClient struct {
	httpClient *http.Client
	cfg        *config.GenerationConfig

	// Concurrency control
	globalSemaphore chan struct{} // Limits total concurrent upstream calls
	maxConcurrent   int

	// Metrics
	totalRequests  int64
	activeRequests int
	statsMu        sync.RWMutex // Protects stats

	// Observability
	logger *observability.Logger

	// Shutdown control
	shutdownCtx context.Context
	shutdownMu  sync.RWMutex
}

// NewLLMClient creates an upstream client from the generation config.
func NewLLMClient(cfg *config.GenerationConfig, logger *observability.Logger) *LLMClient {
	// Instrumented HTTP client with an explicit client span kind. The
	// credential travels in a header, never in the traced URL.
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &LLMClient{
		httpClient:      httpClient,
		cfg:             cfg,
		globalSemaphore: make(chan struct{}, cfg.MaxConcurrent),
		maxConcurrent:   cfg.MaxConcurrent,
		shutdownCtx:     context.Background(),
		logger:          logger,
	}
}

// Shutdown gracefully shuts down the client, waiting for in-flight
// upstream calls to drain.
func (s *LLMClient) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	shutdownCtx, cancel := context.WithCancel(ctx)
	s.shutdownCtx = shutdownCtx
	defer cancel()

	timeout := config.GenerationShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	ticker := time.NewTicker(config.GenerationShutdownPollInterval)
	defer ticker.Stop()

	for i := 0; i < int(timeout/config.GenerationShutdownPollInterval); i++ {
		s.statsMu.RLock()
		active := s.activeRequests
		s.statsMu.RUnlock()

		if active == 0 {
			break
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.httpClient != nil {
		s.httpClient.CloseIdleConnections()
	}

	s.logger.Info(ctx, "Generation client shutdown completed")
	return nil
}

// isShutdown checks if the client is shutting down
func (s *LLMClient) isShutdown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	select {
	case <-s.shutdownCtx.Done():
		return true
	default:
		return false
	}
}

// GenerateContent sends prompt to the generation API using credential and
// returns the raw candidate text. Upstream failures keep the HTTP status
// and body text in the error message so callers can classify them.
func (s *LLMClient) GenerateContent(ctx context.Context, credential, prompt string, schema json.RawMessage, temperature float64) (result0 string, err error) {
	err = s.withConcurrencyControl(ctx, func() error {
		var callErr error
		result0, callErr = s.callGenerateContent(ctx, credential, prompt, schema, temperature)
		return callErr
	})
	return result0, err
}

func (s *LLMClient) callGenerateContent(ctx context.Context, credential, prompt string, schema json.RawMessage, temperature float64) (result0 string, err error) {
	_, span := observability.TraceGenerationFunction(ctx, "call_generate_content",
		observability.AttributeModel(s.cfg.Model),
		attribute.Int("prompt.length", len(prompt)),
		attribute.Bool("schema.enabled", len(schema) > 0),
	)
	defer observability.FinishSpan(span, &err)

	// Validate input parameters
	if credential == "" {
		span.SetAttributes(attribute.String("call.result", "empty_credential"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "credential is required")
	}

	if s.cfg.Model == "" {
		span.SetAttributes(attribute.String("call.result", "empty_model"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "model is required")
	}

	if prompt == "" {
		span.SetAttributes(attribute.String("call.result", "empty_prompt"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "prompt cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(s.cfg.BaseURL, "/"), s.cfg.Model)

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: prompt}},
			Role:  "user",
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature: temperature,
		},
	}
	if len(schema) > 0 {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
		reqBody.GenerationConfig.ResponseSchema = schema
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "marshal_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	s.logger.Debug(ctx, "Making generation HTTP request", map[string]interface{}{
		"url":        endpoint,
		"model":      s.cfg.Model,
		"credential": contextutils.MaskAPIKey(credential),
	})

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "request_creation_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "questgen/1.0")
	req.Header.Set("x-goog-api-key", credential)

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error(ctx, "Generation HTTP request failed", err, map[string]interface{}{
			"duration": duration.String(),
		})
		span.SetAttributes(attribute.String("call.result", "http_request_failed"), attribute.String("error", err.Error()), attribute.String("duration", duration.String()))
		return "", contextutils.WrapErrorf(err, "HTTP request failed after %v", duration)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	s.logger.Info(ctx, "Generation HTTP request completed", map[string]interface{}{
		"duration":    duration.String(),
		"status_code": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "body_read_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		// The endpoint stays on the span; the error text carries only the
		// status and upstream body, which is what fault classification reads.
		span.SetAttributes(attribute.String("call.result", "http_error"), attribute.Int("status_code", resp.StatusCode), attribute.String("url", endpoint))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var genResp geminiResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		span.SetAttributes(attribute.String("call.result", "json_unmarshal_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse generation response as JSON: %w. Raw response: %s", err, string(body))
	}

	if genResp.Error != nil {
		span.SetAttributes(attribute.String("call.result", "api_error"), attribute.String("error_message", genResp.Error.Message), attribute.String("error_status", genResp.Error.Status))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "generation API error: %s", genResp.Error.Message)
	}

	if len(genResp.Candidates) == 0 {
		span.SetAttributes(attribute.String("call.result", "no_candidates"))
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "no candidates in generation response")
	}

	var content strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	if content.Len() == 0 {
		span.SetAttributes(attribute.String("call.result", "empty_content"))
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "generation returned empty content")
	}

	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("content_length", content.Len()), attribute.String("duration", duration.String()))
	return content.String(), nil
}

// TestConnection verifies that a credential can reach the generation API.
func (s *LLMClient) TestConnection(ctx context.Context, credential string) (err error) {
	_, span := observability.TraceGenerationFunction(ctx, "test_connection",
		observability.AttributeModel(s.cfg.Model),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.GenerateContent(ctx, credential, "Reply with the single word: ok", nil, 0)
	if err != nil {
		return contextutils.WrapErrorf(err, "connection test failed for credential %s", contextutils.MaskAPIKey(credential))
	}
	return nil
}

// GetConcurrencyStats returns current concurrency metrics.
func (s *LLMClient) GetConcurrencyStats() ConcurrencyStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return ConcurrencyStats{
		ActiveRequests: s.activeRequests,
		MaxConcurrent:  s.maxConcurrent,
		QueuedRequests: 0, // No queueing, slot acquisition fails fast
		TotalRequests:  s.totalRequests,
	}
}

// acquireGlobalSlot attempts to acquire a concurrency slot
func (s *LLMClient) acquireGlobalSlot(ctx context.Context) error {
	select {
	case s.globalSemaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "request cancelled while waiting for generation slot: %w", ctx.Err())
	default:
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "generation service at capacity (%d concurrent requests), please try again", s.maxConcurrent)
	}
}

// releaseGlobalSlot releases a concurrency slot
func (s *LLMClient) releaseGlobalSlot(ctx context.Context) {
	select {
	case <-s.globalSemaphore:
		s.statsMu.Lock()
		if s.activeRequests > 0 {
			s.activeRequests--
		}
		s.statsMu.Unlock()
	default:
		s.logger.Warn(ctx, "Attempted to release generation slot but none were acquired")
	}
}

// incrementTotalRequests increments the total request counter
func (s *LLMClient) incrementTotalRequests() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.totalRequests++
}

// withConcurrencyControl wraps an upstream call with the concurrency limit
func (s *LLMClient) withConcurrencyControl(ctx context.Context, operation func() error) error {
	if s.isShutdown() {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "generation client is shutting down")
	}

	s.incrementTotalRequests()

	if err := s.acquireGlobalSlot(ctx); err != nil {
		return err
	}

	s.statsMu.Lock()
	s.activeRequests++
	s.statsMu.Unlock()

	defer func() {
		s.releaseGlobalSlot(ctx)
	}()

	return operation()
}
