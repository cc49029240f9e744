// internal/common/oracle/http.go
package oracle

import (
	"context"
	"strings"

	commonhttp "qa-autoresponder/internal/common/http"
)

// HTTPClient calls a generation gateway at POST {base}/api/ai/generate.
type HTTPClient struct {
	baseURL string
	model   string
	client  *commonhttp.Client
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// NewHTTPClient builds the gateway client. Deadlines come from the caller's context.
func NewHTTPClient(baseURL, apiKey, model string) *HTTPClient {
	client := commonhttp.NewClient(0)
	if apiKey != "" {
		client = client.WithHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (c *HTTPClient) Invoke(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	var resp generateResponse
	err := c.client.DoJSON(ctx, "POST", c.baseURL+"/api/ai/generate", generateRequest{
		Prompt:      prompt,
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, &resp)
	if err != nil {
		if se, ok := err.(*commonhttp.StatusError); ok && !se.Temporary() {
			return "", Permanent(err)
		}
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}
