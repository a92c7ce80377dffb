package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"invoicelayout/internal/logger"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	defaultMaxRetries  = 3
	// maxPromptText caps the invoice text sent per request, in runes.
	maxPromptText = 12000
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the chat completion enricher.
type OpenAIConfig struct {
	Model       string
	MaxRetries  int
	Temperature float32
}

// OpenAIEnricher asks a chat model for the missing header fields of an
// invoice, given the text of its pages.
type OpenAIEnricher struct {
	client chatClient
	config OpenAIConfig
	log    zerolog.Logger
}

// NewOpenAIEnricher creates the enricher with the given API key.
func NewOpenAIEnricher(apiKey string, config OpenAIConfig) (*OpenAIEnricher, error) {
	const op = "NewOpenAIEnricher"
	if apiKey == "" {
		return nil, NewEnrichError(op, ErrMissingCredentials, "OPENAI_API_KEY is required")
	}
	return newOpenAIEnricher(openai.NewClient(apiKey), config), nil
}

func newOpenAIEnricher(client chatClient, config OpenAIConfig) *OpenAIEnricher {
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = defaultMaxRetries
	}
	return &OpenAIEnricher{
		client: client,
		config: config,
		log:    logger.WithComponent("enrich.openai"),
	}
}

func (e *OpenAIEnricher) Name() string { return ProviderOpenAI }

func (e *OpenAIEnricher) Close() error { return nil }

// Enrich sends the range text with the list of missing fields and parses
// the JSON answer. Failed or unparsable answers are retried.
func (e *OpenAIEnricher) Enrich(ctx context.Context, req Request) (*Fields, error) {
	const op = "Enrich"

	missing := req.Missing()
	if len(missing) == 0 {
		return &Fields{}, nil
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, NewEnrichError(op, ErrNoResponse, "no text to send")
	}
	prompt := buildPrompt(req, missing)

	e.log.Debug().
		Int("prompt_length", len(prompt)).
		Strs("missing_fields", missing).
		Str("model", e.config.Model).
		Msg("Sending enrichment request")

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, WrapEnrichError(op, err, "")
		}
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.config.Model,
			Temperature: e.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			MaxTokens: 400,
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrProviderFailed, err)
			e.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", e.config.MaxRetries).
				Msg("Enrichment request failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = ErrNoResponse
			continue
		}

		content := resp.Choices[0].Message.Content
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(stripFence(content)), &raw); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrNoResponse, err)
			e.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Failed to parse enrichment response, retrying")
			continue
		}

		fields := &Fields{
			Vendor:        getString(raw, FieldVendor),
			Customer:      getString(raw, FieldCustomer),
			InvoiceDate:   getString(raw, FieldInvoiceDate),
			Reference:     getString(raw, FieldReference),
			InvoiceNumber: getString(raw, "invoice_number"),
			Total:         getString(raw, "total"),
			Confidence:    map[string]float64{},
		}
		for _, f := range missing {
			if getString(raw, f) != "" {
				fields.Confidence[f] = getFloat(raw, "confidence", 0.5)
			}
		}

		e.log.Info().
			Int("page_start", req.PageStart).
			Int("page_end", req.PageEnd).
			Int("attempt", attempt).
			Msg("Enrichment response received")
		return fields, nil
	}

	return nil, NewEnrichError(op, lastErr, fmt.Sprintf("all %d attempts failed", e.config.MaxRetries))
}

const systemPrompt = `You read the text of one invoice and return a JSON object.
Keys: vendor, customer, invoice_date (YYYY-MM-DD), reference, invoice_number, total, confidence (0 to 1).
The vendor issued the invoice, the customer receives it. Use an empty string for anything not printed in the text. Never guess.`

func buildPrompt(req Request, missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Missing fields: %s\n", strings.Join(missing, ", "))
	if req.Header.InvoiceNumber != "" {
		fmt.Fprintf(&b, "Invoice number read from the layout: %s\n", req.Header.InvoiceNumber)
	}
	fmt.Fprintf(&b, "Pages %d-%d:\n\n", req.PageStart, req.PageEnd)
	b.WriteString(truncateText(req.Text, maxPromptText))
	return b.String()
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// stripFence removes a markdown code fence around a JSON answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// getString safely extracts a string value from a map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", v))
	}
	return ""
}

func getFloat(m map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := m[key].(float64); ok && v >= 0 && v <= 1 {
		return v
	}
	return fallback
}
