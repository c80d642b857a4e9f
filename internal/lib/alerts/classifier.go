package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClassifier implements Classifier using OpenAI structured output
type openAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier creates a Classifier backed by the OpenAI API
func NewOpenAIClassifier(apiKey, model string) Classifier {
	if apiKey == "" {
		return &openAIClassifier{client: nil, model: model} // Will cause errors - for testing
	}
	return &openAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIClassifierWithConfig creates a Classifier with a custom client configuration
func NewOpenAIClassifierWithConfig(cfg openai.ClientConfig, model string) Classifier {
	return &openAIClassifier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Classify sends the report to the model and validates the structured answer.
// Fields the model leaves invalid fall back to the keyword tables.
func (c *openAIClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if c.client == nil {
		return Classification{}, errors.New("OpenAI client not initialized - invalid API key")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Classify this incident report and return structured JSON:\n\n%s", text),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &ClassificationSchema,
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Classification{}, errors.New("no response from OpenAI API")
	}

	var out Classification
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return Classification{}, fmt.Errorf("failed to parse OpenAI JSON response: %w", err)
	}

	if !isValidType(out.Type) {
		out.Type = InferType(text)
	}
	if sev, ok := ParseSeverity(string(out.Severity)); ok {
		out.Severity = sev
	} else {
		out.Severity = InferSeverity(text)
	}

	return out, nil
}

func isValidType(t AlertType) bool {
	switch t {
	case TypeAccident, TypeConstruction, TypeEvent, TypeProtest, TypeWeather, TypeClosure, TypeCongestion, TypeOther:
		return true
	}
	return false
}
