package pushover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spider-home/internal/infra"
)

const DefaultAPIURL = "https://api.pushover.net/1/messages.json"

type Client struct {
	token      string
	userKey    string
	apiURL     string
	title      string
	httpClient *http.Client
	retry      infra.RetryConfig
}

type statusError struct {
	status int
	text   string
}

func (e *statusError) Error() string {
	return "pushover error: " + e.text
}

func NewClient(token, userKey, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	retry := infra.DefaultRetryConfig()
	retry.Retryable = func(err error) bool {
		var se *statusError
		if errors.As(err, &se) {
			return infra.IsRetryableHTTPStatus(se.status)
		}
		return true
	}
	return &Client{
		token:      token,
		userKey:    userKey,
		apiURL:     apiURL,
		title:      "Spider Home",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry,
	}
}

// Notify sends message, retrying transport failures and 5xx/429 answers with
// backoff. Without credentials it is a no-op.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)

	return infra.WithRetry(ctx, c.retry, func() error {
		return c.send(ctx, data)
	})
}

func (c *Client) send(ctx context.Context, data url.Values) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.apiURL,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{status: resp.StatusCode, text: resp.Status}
	}

	return nil
}
