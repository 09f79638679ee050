// Package llm implements the language-model side of intent extraction using
// Google's Gemini API. The client is purpose-built for the extraction
// contract: one prompt in, one well-formed JSON record out, no prose.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"billgate/internal/config"
)

// extractionSchema constrains the model to the structured intent record.
// Numeric fields are declared as numbers but the extractor still coerces
// defensively; schema mode reduces malformed output, it does not eliminate it.
var extractionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent":        {Type: genai.TypeString, Description: "One of QUERY_BILL, QUERY_BILL_DETAILED, PAY_BILL."},
		"phoneNumber":   {Type: genai.TypeString, Description: "Subscriber phone number, digits only."},
		"month":         {Type: genai.TypeString, Description: "Billing period expression, ideally YYYY-MM."},
		"paymentAmount": {Type: genai.TypeNumber, Description: "Payment amount extracted from the text, 0 if absent."},
		"page":          {Type: genai.TypeInteger, Description: "Page number for detailed listings, default 1."},
		"pageSize":      {Type: genai.TypeInteger, Description: "Page size for detailed listings, default 10."},
	},
	Required: []string{"intent", "phoneNumber", "month", "paymentAmount", "page", "pageSize"},
}

// Client wraps the genai SDK for intent-extraction completions.
type Client struct {
	genaiClient *genai.Client
	log         *slog.Logger
	config      *genai.GenerateContentConfig
	modelName   string
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

// NewClient creates a new Gemini-backed completion client with the provided
// configuration. Responses are requested as JSON conforming to the
// extraction schema at low-variance sampling.
func NewClient(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	topP := cfg.TopP
	contentConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		TopP:             &topP,
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema,
	}

	logger := log.With("component", "llm_client")
	logger.Info("LLM client initialized successfully", "model", cfg.Model)
	return &Client{
		genaiClient: gi,
		log:         logger,
		config:      contentConfig,
		modelName:   cfg.Model,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// Complete sends the extraction prompt and returns the model's JSON text.
// The call is bounded by the configured timeout; transient server errors
// (500/503) are retried a bounded number of times.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateWithRetries(ctx, contents)
	if err != nil {
		return "", err
	}

	return c.textFromResponse(ctx, resp)
}

func (c *Client) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.config)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "LLM call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying LLM call after transient server error",
					"delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("llm call failed after %d retries (code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("llm call failed: %w", err)
	}

	return nil, err
}

func (c *Client) textFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "LLM request blocked", "reason", reason)
		return "", fmt.Errorf("extraction blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "LLM response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("llm returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm returned empty text")
	}
	return text, nil
}
