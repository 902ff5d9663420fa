package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"
)

// ClaudeProvider talks to the Anthropic Messages API directly over HTTP.
type ClaudeProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClaudeProvider(apiKey, model string, timeout time.Duration, logger *zap.Logger) *ClaudeProvider {
	return &ClaudeProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string         `json:"role"`
	Content []claudeBlock  `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *ClaudeProvider) Extract(ctx context.Context, fileData []byte, fileType, fileName string) (*ExtractionResult, error) {
	imageData := fileData
	mime := mimeTypeFor(fileType)
	if isPDF(fileType, fileName) {
		rendered, err := renderPDFFirstPage(fileData)
		if err != nil {
			return nil, fmt.Errorf("convert pdf: %w", err)
		}
		imageData = rendered
		mime = "image/png"
	}

	req := claudeRequest{
		Model:     p.model,
		MaxTokens: 2048,
		Messages: []claudeMessage{{
			Role: "user",
			Content: []claudeBlock{
				{
					Type: "image",
					Source: &claudeSource{
						Type:      "base64",
						MediaType: mime,
						Data:      base64.StdEncoding.EncodeToString(imageData),
					},
				},
				{Type: "text", Text: extractionPrompt},
			},
		}},
	}

	content, err := p.send(ctx, &req)
	if err != nil {
		return nil, err
	}
	return parseExtractionPayload(content), nil
}

func (p *ClaudeProvider) Chat(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	req := claudeRequest{
		Model:     p.model,
		MaxTokens: 1024,
		System:    system,
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		req.Messages = append(req.Messages, claudeMessage{
			Role:    role,
			Content: []claudeBlock{{Type: "text", Text: m.Content}},
		})
	}
	return p.send(ctx, &req)
}

func (p *ClaudeProvider) send(ctx context.Context, req *claudeRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal claude request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build claude request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call claude api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read claude response: %w", err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode claude response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("claude api status %d: %s", resp.StatusCode, msg)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
