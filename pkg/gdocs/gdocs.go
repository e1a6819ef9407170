// Package gdocs publishes latency reports to Google Docs.
package gdocs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-camlat/internal/httpc"
	"github.com/teslashibe/go-camlat/internal/log"
)

const (
	DefaultRedirectURL = "http://localhost:8085/oauth/callback"
	requestTimeout     = 30 * time.Second
)

var (
	ErrMissingCredentials = errors.New("gdocs: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	ErrNotAuthenticated   = errors.New("gdocs: not authenticated")
)

// Config configures the Google Docs client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // local callback for the consent flow
	TokenPath    string // default: ~/.camlat/google_token.json
}

// Client handles OAuth2 authentication and Google Docs operations.
type Client struct {
	config    *oauth2.Config
	tokenPath string
	logger    *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
}

// New creates a client and loads a stored token when one exists.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".camlat", "google_token.json")
	}

	c := &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		logger:    log.With("component", "gdocs"),
	}

	if err := c.loadToken(); err == nil {
		if err := c.initService(context.Background()); err != nil {
			c.logger.Warn("stored token unusable", "error", err)
			c.token = nil
		}
	}
	return c, nil
}

// IsAuthenticated reports whether a token is loaded. Expired tokens with a
// refresh token still count, oauth2 refreshes them on use.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.service != nil && c.token != nil && (c.token.Valid() || c.token.RefreshToken != "")
}

// AuthURL returns the consent URL for the given state.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token, stores it and
// initializes the Docs service.
func (c *Client) Exchange(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	token, err := c.config.Exchange(oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if err := c.saveToken(); err != nil {
		c.logger.Warn("failed to save token", "path", c.tokenPath, "error", err)
	}
	if err := c.initService(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize docs service: %w", err)
	}
	return nil
}

// Disconnect clears the token and removes it from disk.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
	c.service = nil

	if err := os.Remove(c.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (c *Client) docsService() (*docs.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.service == nil {
		return nil, ErrNotAuthenticated
	}
	return c.service, nil
}

// Publish writes content to a document. An empty docID creates a new
// document with the given title; otherwise the document's body is replaced.
// It returns the document ID.
func (c *Client) Publish(ctx context.Context, docID, title, content string) (string, error) {
	if docID == "" {
		return c.CreateDoc(ctx, title, content)
	}
	return docID, c.UpdateDoc(ctx, docID, content)
}

// CreateDoc creates a new document with the given title and content.
func (c *Client) CreateDoc(ctx context.Context, title, content string) (string, error) {
	service, err := c.docsService()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	created, err := service.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	if content != "" {
		_, err = service.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{insertText(content)},
		}).Context(ctx).Do()
		if err != nil {
			return created.DocumentId, fmt.Errorf("created doc but failed to add content: %w", err)
		}
	}

	c.logger.Info("report published", "doc", created.DocumentId)
	return created.DocumentId, nil
}

// UpdateDoc replaces the body of an existing document.
func (c *Client) UpdateDoc(ctx context.Context, docID, content string) error {
	service, err := c.docsService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	doc, err := service.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var requests []*docs.Request
	// the body always ends with a newline that cannot be deleted
	if doc.Body != nil && len(doc.Body.Content) > 0 {
		endIndex := doc.Body.Content[len(doc.Body.Content)-1].EndIndex - 1
		if endIndex > 1 {
			requests = append(requests, &docs.Request{
				DeleteContentRange: &docs.DeleteContentRangeRequest{
					Range: &docs.Range{StartIndex: 1, EndIndex: endIndex},
				},
			})
		}
	}
	requests = append(requests, insertText(content))

	_, err = service.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	c.logger.Info("report updated", "doc", docID)
	return nil
}

// GetDoc returns the plain text of a document.
func (c *Client) GetDoc(ctx context.Context, docID string) (string, error) {
	service, err := c.docsService()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	doc, err := service.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get document: %w", err)
	}

	var content string
	if doc.Body != nil {
		for _, elem := range doc.Body.Content {
			if elem.Paragraph == nil {
				continue
			}
			for _, pe := range elem.Paragraph.Elements {
				if pe.TextRun != nil {
					content += pe.TextRun.Content
				}
			}
		}
	}
	return content, nil
}

// DocURL returns the URL to view a document.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// oauthContext makes oauth2 use the bounded client for token requests.
func oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, httpc.Client)
}

func insertText(text string) *docs.Request {
	return &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: 1},
			Text:     text,
		},
	}
}

func (c *Client) initService(ctx context.Context, opts ...option.ClientOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return errors.New("no token available")
	}

	client := c.config.Client(oauthContext(ctx), c.token)
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create docs service: %w", err)
	}
	c.service = service
	return nil
}

func (c *Client) loadToken() error {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = &token
	c.mu.Unlock()
	return nil
}

func (c *Client) saveToken() error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == nil {
		return errors.New("no token to save")
	}
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenPath, data, 0600)
}
