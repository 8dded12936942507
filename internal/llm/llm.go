// Package llm suggests Bloom taxonomy levels for questions through an
// OpenAI-compatible chat completion API.
package llm

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/qngenius/qngenius/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

//go:embed prompts/bloom.txt
var promptFS embed.FS

var bloomTemplate = template.Must(template.ParseFS(promptFS, "prompts/bloom.txt"))

var questionTagRegex = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)

const maxQuestionRunes = 4000

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

type bloomResponse struct {
	BloomLevel string `json:"bloom_level"`
}

// ClassifyBloom asks the model which Bloom level the question text targets.
func (c *Client) ClassifyBloom(ctx context.Context, text string) (model.BloomLevel, error) {
	prompt, err := buildBloomPrompt(text)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseBloom(raw)
}

func buildBloomPrompt(text string) (string, error) {
	data := struct {
		Question string
		Levels   []model.BloomLevel
	}{
		Question: sanitizeQuestion(text),
		Levels:   model.BloomLevels,
	}
	var buf bytes.Buffer
	if err := bloomTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render bloom prompt: %w", err)
	}
	return buf.String(), nil
}

// parseBloom accepts the level in any letter case and returns the canonical
// spelling.
func parseBloom(raw string) (model.BloomLevel, error) {
	var r bloomResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	got := strings.TrimSpace(r.BloomLevel)
	for _, l := range model.BloomLevels {
		if strings.EqualFold(got, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("LLM returned unknown bloom level %q", r.BloomLevel)
}

func sanitizeQuestion(text string) string {
	text = questionTagRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxQuestionRunes {
		text = string([]rune(text)[:maxQuestionRunes])
	}
	return text
}
