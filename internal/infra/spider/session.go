package spider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Session owns the bearer token. It is the only component that talks to the
// token endpoint.
type Session struct {
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	margin     time.Duration

	mu    sync.Mutex
	store credentialStore
}

func NewSession(cfg Config, logger *slog.Logger, opts ...Option) *Session {
	cfg.setDefaults()
	o := newOptions(cfg, opts)
	return &Session{
		tokenURL:   strings.TrimSuffix(cfg.BaseURL, "/") + tokensPath,
		httpClient: o.httpClient,
		logger:     logger,
		now:        o.now,
		margin:     cfg.TokenMargin,
		store:      credentialStore{creds: Credentials{Username: cfg.Username, Password: cfg.Password}},
	}
}

// Login exchanges the stored username and password for a new token.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(ctx)
}

// Refresh exchanges the refresh token for a new token pair. A rejected
// refresh falls back to a single password login.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

// EnsureValid logs in when there is no token and refreshes an expired one.
// A valid token costs no network call.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureValid(ctx)
}

// AccessToken returns a bearer token that was valid when checked.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureValid(ctx); err != nil {
		return "", err
	}
	t, _ := s.store.current()
	return t.AccessToken, nil
}

// Invalidate marks the current token as expired after the service rejected it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.expire()
}

// Token returns a copy of the current token.
func (s *Session) Token() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.current()
}

func (s *Session) ensureValid(ctx context.Context) error {
	t, ok := s.store.current()
	if !ok {
		return s.login(ctx)
	}
	if t.Expired(s.now()) {
		return s.refresh(ctx)
	}
	return nil
}

func (s *Session) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", s.store.creds.Username)
	form.Set("password", s.store.creds.Password)

	resp, err := s.requestToken(ctx, form)
	if err != nil {
		return fmt.Errorf("%w: login: %w", ErrAuthentication, err)
	}

	s.store.replace(newToken(resp, s.now(), s.margin))
	s.logger.Debug("logged in to spider API", "expires_in", resp.ExpiresIn)
	return nil
}

func (s *Session) refresh(ctx context.Context) error {
	t, ok := s.store.current()
	if !ok || t.RefreshToken == "" {
		return s.login(ctx)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", t.RefreshToken)

	resp, err := s.requestToken(ctx, form)
	if err != nil {
		s.logger.Warn("token refresh rejected, logging in again", "error", err)
		return s.login(ctx)
	}

	if resp.RefreshToken == "" {
		resp.RefreshToken = t.RefreshToken
	}
	s.store.replace(newToken(resp, s.now(), s.margin))
	s.logger.Debug("refreshed spider API token", "expires_in", resp.ExpiresIn)
	return nil
}

func (s *Session) requestToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("reading token response: %w", err)
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && tr.Error != "" {
			return tokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, tr.Error)
		}
		return tokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	if decodeErr != nil {
		return tokenResponse{}, fmt.Errorf("parsing token response: %w", decodeErr)
	}
	if tr.Error != "" {
		return tokenResponse{}, fmt.Errorf("token error: %s", tr.Error)
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token response without access_token")
	}

	return tr, nil
}
