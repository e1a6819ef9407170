package gdocs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingCredentials(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	homeDir, _ := os.UserHomeDir()
	if want := filepath.Join(homeDir, ".camlat", "google_token.json"); c.tokenPath != want {
		t.Errorf("Expected token path %s, got %s", want, c.tokenPath)
	}
	if c.config.RedirectURL != DefaultRedirectURL {
		t.Errorf("Expected default redirect URL, got %s", c.config.RedirectURL)
	}
}

func TestAuthURL(t *testing.T) {
	c := testClient(t)
	u := c.AuthURL("state-1")
	if !strings.Contains(u, "client_id=test-client-id") || !strings.Contains(u, "state=state-1") {
		t.Errorf("Unexpected auth URL: %s", u)
	}
	if !strings.Contains(u, "access_type=offline") {
		t.Errorf("Expected offline access in auth URL: %s", u)
	}
}

func TestNotAuthenticated(t *testing.T) {
	c := testClient(t)
	if c.IsAuthenticated() {
		t.Error("Expected not authenticated without token")
	}
	if _, err := c.Publish(context.Background(), "", "title", "body"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if err := c.UpdateDoc(context.Background(), "doc", "body"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect without token: %v", err)
	}
}

func TestStoredTokenLoaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := oauth2.Token{AccessToken: "abc", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	data, _ := json.Marshal(tok)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	c, err := New(Config{ClientID: "id", ClientSecret: "secret", TokenPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Error("Expected stored token to authenticate the client")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected token file to be removed")
	}
}

func TestCallbackHandler(t *testing.T) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)
	h := CallbackHandler("s1", codes, errs)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"wrong state", "?state=other&code=x", http.StatusBadRequest},
		{"missing code", "?state=s1", http.StatusBadRequest},
		{"denied", "?state=s1&error=access_denied", http.StatusForbidden},
		{"ok", "?state=s1&code=abc", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/oauth/callback"+tc.query, nil))
			if rec.Code != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	if got := <-codes; got != "abc" {
		t.Errorf("Expected code abc, got %q", got)
	}
	if err := <-errs; err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("Expected denial error, got %v", err)
	}
}

// fakeDocs serves the subset of the Docs API the client uses.
type fakeDocs struct {
	mu       sync.Mutex
	text     string
	requests []string
}

func (f *fakeDocs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == "POST" && r.URL.Path == "/v1/documents":
		io.WriteString(w, `{"documentId":"doc-1","title":"camlat"}`)
	case r.Method == "POST" && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				InsertText *struct {
					Text string `json:"text"`
				} `json:"insertText"`
			} `json:"requests"`
		}
		json.Unmarshal(body, &req)
		for _, rq := range req.Requests {
			if rq.InsertText != nil {
				f.text = rq.InsertText.Text
			}
		}
		io.WriteString(w, `{"documentId":"doc-1"}`)
	case r.Method == "GET" && r.URL.Path == "/v1/documents/doc-1":
		resp := map[string]any{
			"documentId": "doc-1",
			"body": map[string]any{
				"content": []any{
					map[string]any{
						"endIndex": len(f.text) + 2,
						"paragraph": map[string]any{
							"elements": []any{
								map[string]any{"textRun": map[string]any{"content": f.text}},
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func TestPublish_CreateAndUpdate(t *testing.T) {
	fake := &fakeDocs{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := testClient(t)
	c.token = &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)}
	if err := c.initService(context.Background(), option.WithEndpoint(srv.URL+"/")); err != nil {
		t.Fatalf("initService: %v", err)
	}

	ctx := context.Background()
	id, err := c.Publish(ctx, "", "camlat", "RESULT [a]: mean=30.00")
	if err != nil {
		t.Fatalf("Publish create: %v", err)
	}
	if id != "doc-1" {
		t.Errorf("Expected doc-1, got %s", id)
	}

	if _, err := c.Publish(ctx, id, "camlat", "RESULT [b]: mean=31.00"); err != nil {
		t.Fatalf("Publish update: %v", err)
	}
	text, err := c.GetDoc(ctx, id)
	if err != nil {
		t.Fatalf("GetDoc: %v", err)
	}
	if text != "RESULT [b]: mean=31.00" {
		t.Errorf("Expected updated text, got %q", text)
	}
}

func TestDocURL(t *testing.T) {
	if got := DocURL("abc"); got != "https://docs.google.com/document/d/abc/edit" {
		t.Errorf("Unexpected URL: %s", got)
	}
}
