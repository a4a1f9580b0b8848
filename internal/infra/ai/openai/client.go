package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
	"github.com/bryanwahyu/labpulse/internal/domain/extraction"
	"github.com/bryanwahyu/labpulse/internal/infra/ai/prompt"
)

const maxTokens = 4096

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// Extract sends the raw report text and parses the candidate list back.
// The caller owns the timeout via ctx.
func (c *Client) Extract(ctx context.Context, text string) ([]biomarkers.Measurement, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-2024-08-06"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(text)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, extraction.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, extraction.ErrMalformedResponse
	}

	return ParseCandidates(resp.Choices[0].Message.Content)
}

// ParseCandidates decodes the provider's JSON reply into measurements,
// dropping entries without a usable name.
func ParseCandidates(raw string) ([]biomarkers.Measurement, error) {
	var body struct {
		Biomarkers []struct {
			Name       string  `json:"name"`
			Value      float64 `json:"value"`
			Unit       string  `json:"unit"`
			Confidence float64 `json:"confidence"`
		} `json:"biomarkers"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", extraction.ErrMalformedResponse, err)
	}

	out := make([]biomarkers.Measurement, 0, len(body.Biomarkers))
	for _, b := range body.Biomarkers {
		if strings.TrimSpace(b.Name) == "" {
			continue
		}
		out = append(out, biomarkers.Measurement{
			Name:       b.Name,
			Value:      b.Value,
			Unit:       b.Unit,
			Confidence: b.Confidence,
		})
	}
	return out, nil
}
