package spider

import (
	"net/url"
	"time"
)

// DefaultTokenMargin is subtracted from the server-provided lifetime so the
// token is refreshed slightly before it actually expires.
const DefaultTokenMargin = 20 * time.Second

type Credentials struct {
	Username string
	Password string
}

// Token is replaced as a whole on every login or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func newToken(resp tokenResponse, now time.Time, margin time.Duration) Token {
	refresh := resp.RefreshToken
	if unescaped, err := url.PathUnescape(refresh); err == nil {
		refresh = unescaped
	}
	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn)*time.Second - margin),
	}
}

// credentialStore holds the login pair and the current token, if any.
type credentialStore struct {
	creds Credentials
	token *Token
}

func (s *credentialStore) current() (Token, bool) {
	if s.token == nil {
		return Token{}, false
	}
	return *s.token, true
}

func (s *credentialStore) replace(t Token) {
	s.token = &t
}

// expire keeps the refresh token but forces the next validity check to fail.
func (s *credentialStore) expire() {
	if s.token == nil {
		return
	}
	t := *s.token
	t.ExpiresAt = time.Time{}
	s.token = &t
}
