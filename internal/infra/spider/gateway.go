package spider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"spider-home/internal/infra"
)

// tokenSource is the part of Session the gateway depends on.
type tokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	EnsureValid(ctx context.Context) error
	Invalidate()
}

// Gateway performs authenticated reads and writes against the Spider API.
// A 401 causes one token refresh and one repeat of the same request.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	session    tokenSource
	logger     *slog.Logger
}

func NewGateway(baseURL string, httpClient *http.Client, session tokenSource, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
		logger:     logger,
	}
}

// Fetch GETs path and decodes the JSON response into v.
func (g *Gateway) Fetch(ctx context.Context, path string, v any) error {
	body, err := g.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &RemoteError{StatusCode: http.StatusOK, Body: truncate(body), Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// Submit PUTs body, encoded as JSON, to path.
func (g *Gateway) Submit(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	_, err = g.doRequest(ctx, http.MethodPut, path, payload)
	return err
}

func (g *Gateway) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	refresh := func(ctx context.Context) error {
		g.logger.Info("spider API rejected token, refreshing", "method", method, "path", path)
		g.session.Invalidate()
		return g.session.EnsureValid(ctx)
	}

	err := infra.WithRetry(ctx, infra.OnceMore(isUnauthorized, refresh), func() error {
		token, err := g.session.AccessToken(ctx)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return &RemoteError{Err: fmt.Errorf("sending request: %w", err)}
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return &RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &RemoteError{StatusCode: resp.StatusCode, Body: truncate(respBody)}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return respBody, nil
}

const maxErrorBody = 512

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
