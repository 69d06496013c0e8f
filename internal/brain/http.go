package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seedhantkalra/caremind/internal/protocol"
)

// HTTPAdapter speaks the chat-completions wire format most hosted completion
// services expose. One request per turn; deadlines come from the caller's
// context or the client timeout, whichever fires first.
type HTTPAdapter struct {
	url       string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

func NewHTTPAdapter(cfg Config) *HTTPAdapter {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &HTTPAdapter{
		url:       strings.TrimRight(strings.TrimSpace(cfg.HTTPURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     model,
		maxTokens: cfg.MaxTokens,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *HTTPAdapter) Complete(ctx context.Context, turns []protocol.Turn, onDelta DeltaHandler) (string, error) {
	messages := make([]wireMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, wireMessage{Role: string(t.Role), Content: t.Text})
	}

	body := map[string]any{
		"model":    a.model,
		"messages": messages,
	}
	if a.maxTokens > 0 {
		body["max_tokens"] = a.maxTokens
	}
	if onDelta != nil {
		body["stream"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("completion status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		return a.consumeStream(res.Body, onDelta)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj completionResponse
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if obj.Error != nil {
		return "", fmt.Errorf("completion error: %s", obj.Error.Message)
	}
	if len(obj.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	text := obj.Choices[0].Message.Content
	if text != "" && onDelta != nil {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (a *HTTPAdapter) consumeStream(body io.Reader, onDelta DeltaHandler) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var obj completionResponse
		if err := json.Unmarshal([]byte(line), &obj); err != nil || len(obj.Choices) == 0 {
			continue
		}
		delta := obj.Choices[0].Delta.Content
		if delta == "" {
			delta = obj.Choices[0].Message.Content
		}
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}
