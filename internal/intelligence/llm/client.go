// Package llm is a client for OpenAI-compatible chat completion endpoints
// (Groq by default). It carries text and vision requests and leaves response
// interpretation to callers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an http(s) or data: URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Message is a chat message. A message holding a single text part is sent
// with plain string content.
type Message struct {
	Role  string
	Parts []ContentPart
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 && m.Parts[0].Type == "text" {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Parts[0].Text})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []ContentPart `json:"content"`
	}{m.Role, m.Parts})
}

// TextMessage builds a message from text parts.
func TextMessage(role string, texts ...string) Message {
	parts := make([]ContentPart, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, ContentPart{Type: "text", Text: t})
	}
	return Message{Role: role, Parts: parts}
}

// ImageMessage builds a user message with an instruction and one image.
func ImageMessage(instruction, imageURL string) Message {
	return Message{Role: RoleUser, Parts: []ContentPart{
		{Type: "text", Text: instruction},
		{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
	}}
}

// CompletionRequest describes one chat completion call.
type CompletionRequest struct {
	// Operation labels metrics and logs ("ocr", "summarize", "extract").
	Operation   string
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	// JSON requests response_format json_object.
	JSON bool
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client calls /chat/completions.
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	temperature float64
	metrics     *prom.AppMetrics
	logger      logging.Logger
}

// NewClient builds a client from cfg. metrics may be nil.
func NewClient(cfg config.LLMConfig, metrics *prom.AppMetrics, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "llm: base url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultLLMTimeout
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		temperature: cfg.SummaryTemperature,
		metrics:     metrics,
		logger:      logger.Named("llm"),
	}, nil
}

// Model returns the default text model.
func (c *Client) Model() string { return c.model }

// VisionModel returns the image-capable model.
func (c *Client) VisionModel() string { return c.visionModel }

// Temperature returns the configured summary temperature.
func (c *Client) Temperature() float64 { return c.temperature }

// Complete sends req and returns the first choice's content. Transport
// failures, non-200 statuses and provider errors are ErrCodeLLMCallFailed.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	start := time.Now()
	content, err := c.do(ctx, body)
	prom.RecordLLMCall(c.metrics, model, req.Operation, err == nil, time.Since(start))
	if err != nil {
		c.logger.Warn("chat completion failed",
			logging.String("operation", req.Operation),
			logging.String("model", model),
			logging.Err(err))
		return "", err
	}

	c.logger.Debug("chat completion finished",
		logging.String("operation", req.Operation),
		logging.String("model", model),
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("chars", len(content)))
	return content, nil
}

func (c *Client) do(ctx context.Context, body chatCompletionRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMCallFailed, "create chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMCallFailed, "send chat request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMCallFailed, "read chat response")
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", errors.Newf(errors.ErrCodeLLMCallFailed, "chat completion status %d: %s", resp.StatusCode, truncate(string(raw), 256))
		}
		return "", errors.Wrap(err, errors.ErrCodeLLMResponseParse, "decode chat response")
	}
	if out.Error != nil {
		return "", errors.Newf(errors.ErrCodeLLMCallFailed, "chat completion error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeLLMCallFailed, "chat completion status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", errors.New(errors.ErrCodeLLMCallFailed, "chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
