package spider_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"spider-home/internal/infra/spider"
)

const (
	testUser     = "user@example.com"
	testPassword = "secret"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeSpider imitates the parts of the Spider API the client uses.
type fakeSpider struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	password      string
	expiresIn     int
	rejectRefresh bool
	tokenSeq      int
	grants        []string
	refreshTokens []string
	validToken    string

	devices []map[string]any
	energy  []map[string]any
	usage   map[string]any

	// unauthorized answers the next n data requests with 401.
	unauthorized int
	// failures maps "METHOD path" to a status code.
	failures map[string]int
	delay    time.Duration

	requests []recordedRequest
}

func newFakeSpider(t *testing.T) *fakeSpider {
	t.Helper()
	f := &fakeSpider{
		t:         t,
		password:  testPassword,
		expiresIn: 3600,
		usage:     make(map[string]any),
		failures:  make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSpider) config() spider.Config {
	return spider.Config{
		BaseURL:  f.server.URL,
		Username: testUser,
		Password: testPassword,
		Location: time.UTC,
	}
}

func (f *fakeSpider) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	if r.URL.Path == "/api/tokens" {
		f.handleToken(w, r, body)
		return
	}

	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
	})

	if f.unauthorized > 0 || r.Header.Get("Authorization") != "Bearer "+f.validToken {
		if f.unauthorized > 0 {
			f.unauthorized--
		}
		http.Error(w, `{"message":"Authorization has been denied"}`, http.StatusUnauthorized)
		return
	}

	if code, ok := f.failures[r.Method+" "+r.URL.Path]; ok {
		http.Error(w, "backend unavailable", code)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/devices":
		writeJSON(w, f.devices)
	case r.Method == http.MethodGet && r.URL.Path == "/api/devices/energy/energyDevices":
		writeJSON(w, f.energy)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/monitoring/15/devices/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/monitoring/15/devices/")
		if usage, ok := f.usage[id]; ok {
			writeJSON(w, usage)
			return
		}
		writeJSON(w, []any{})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/devices/"):
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (f *fakeSpider) handleToken(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		f.t.Errorf("token request content type: got %q", r.Header.Get("Content-Type"))
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("parsing token form: %v", err)
	}

	grant := r.PostForm.Get("grant_type")
	f.grants = append(f.grants, grant)

	switch grant {
	case "password":
		if r.PostForm.Get("username") != testUser || r.PostForm.Get("password") != f.password {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		f.refreshTokens = append(f.refreshTokens, r.PostForm.Get("refresh_token"))
		if f.rejectRefresh {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"error": "invalid_grant"})
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": "unsupported_grant_type"})
		return
	}

	f.tokenSeq++
	f.validToken = fmt.Sprintf("access-%d", f.tokenSeq)
	writeJSON(w, map[string]any{
		"access_token":  f.validToken,
		"refresh_token": fmt.Sprintf("refresh%%2B%d", f.tokenSeq),
		"expires_in":    f.expiresIn,
	})
}

func (f *fakeSpider) grantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants)
}

func (f *fakeSpider) grantList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

func (f *fakeSpider) refreshTokenList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshTokens...)
}

func (f *fakeSpider) requestList() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeSpider) countRequests(method, path string) int {
	n := 0
	for _, r := range f.requestList() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeSpider) setUnauthorized(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauthorized = n
}

func (f *fakeSpider) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *fakeSpider) setFailure(method, path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = code
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func thermostatJSON(id string, online bool) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         105,
		"name":         "Living room",
		"model":        "Spider Thermostat",
		"manufacturer": "Itho Daalderop",
		"isOnline":     online,
		"hardwareId":   "hw-" + id,
		"properties": []map[string]any{
			{
				"id":                "AmbientTemperature",
				"status":            "20.5",
				"statusModified":    false,
				"statusLastUpdated": "2024-03-14 12:00:00.000000",
			},
			{
				"id":                "SetpointTemperature",
				"status":            "21",
				"statusModified":    true,
				"statusLastUpdated": "2024-03-14 12:00:00.000000",
				"min":               5,
				"max":               30,
				"step":              0.5,
			},
			{
				"id":             "OperationMode",
				"status":         "Heat",
				"statusModified": false,
				"scheduleChoices": []map[string]any{
					{"value": "Heat", "disabled": false},
					{"value": "Cool", "disabled": false},
				},
			},
			{
				"id":             "FanSpeed",
				"status":         "Low",
				"statusModified": false,
				"scheduleChoices": []map[string]any{
					{"value": "Auto", "disabled": false},
					{"value": "Low", "disabled": false},
					{"value": "Boost 30", "disabled": true},
				},
			},
		},
	}
}

func plugJSON(id string, online bool) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         103,
		"name":         "Washing machine",
		"isOnline":     online,
		"isSwitch":     true,
		"isSwitchedOn": false,
		"isSwitchable": true,
		"currentUsage": 12.5,
	}
}
