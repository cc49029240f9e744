// internal/workers/marketplace/post-answer/client.go
package postanswer

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	commonhttp "qa-autoresponder/internal/common/http"
)

// Client posts answers through the marketplace API.
type Client struct {
	baseURL string
	http    *commonhttp.Client
}

func NewClient(baseURL string, httpClient *commonhttp.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Post publishes answerText on the question. A 409 means the question already has an
// answer, which a redelivered job treats as success.
func (c *Client) Post(ctx context.Context, questionID, answerText string) error {
	endpoint := c.baseURL + "/questions/" + url.PathEscape(questionID) + "/answers"
	err := c.http.DoJSON(ctx, http.MethodPost, endpoint, answerRequest{QuestionID: questionID, Text: answerText}, nil)

	var statusErr *commonhttp.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}
