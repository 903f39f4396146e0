package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smartmart/internal/entity"
)

const systemPrompt = "You rank shop products for a customer. " +
	"Reply with a JSON array of product ids, best match first, and nothing else."

// Reranker asks an OpenAI compatible chat completion endpoint to order
// recommendation candidates.
type Reranker struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewReranker(endpoint, apiKey, model string, timeout time.Duration) *Reranker {
	return &Reranker{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Rerank returns candidate ids in the order suggested by the model. The ids are
// not validated against the candidates.
func (r *Reranker) Rerank(ctx context.Context, subject string, candidates []*entity.Product) ([]int64, error) {
	if r.apiKey == "" {
		return nil, errors.New("recommendation ai api key not set")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt(subject, candidates)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("completion api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("completion api returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("completion api returned no choices")
	}
	return parseIDs(chat.Choices[0].Message.Content)
}

func prompt(subject string, candidates []*entity.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order these products for %s.\n", subject)
	for _, p := range candidates {
		fmt.Fprintf(&b, "- id %d: %s (%s)", p.ID, p.Name, p.Price.StringFixed(2))
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, " tags: %s", strings.Join(p.Tags, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// parseIDs reads the first JSON array found in the reply. Models often wrap it in
// prose or a code fence.
func parseIDs(content string) ([]int64, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no id list in completion %q", content)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(content[start:end+1]), &ids); err != nil {
		return nil, fmt.Errorf("invalid id list: %w", err)
	}
	return ids, nil
}
