// Package graph mirrors files to a OneDrive-style drive through the Graph
// HTTP API: a client-credentials token exchange followed by PUTs to
// path-addressed resources.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultScope   = "https://graph.microsoft.com/.default"
)

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	UserID       string
	Folder       string

	// BaseURL and TokenURL exist for tests; production uses the defaults.
	BaseURL  string
	TokenURL string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("graph: missing client credentials")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("graph: missing user id")
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		if strings.TrimSpace(cfg.TenantID) == "" {
			return nil, fmt.Errorf("graph: missing tenant id")
		}
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Folder == "" {
		cfg.Folder = "telebot"
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{defaultScope},
	}
	// The token source caches the access token until expiry, so repeated
	// uploads do not repeat the credentials exchange.
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = 60 * time.Second

	return &Client{cfg: cfg, http: httpClient}, nil
}

func (c *Client) Upload(ctx context.Context, remoteName string, data []byte) error {
	remoteName = strings.TrimSpace(remoteName)
	if remoteName == "" {
		return fmt.Errorf("graph: missing remote name")
	}
	return c.putContent(ctx, path.Join(c.cfg.Folder, remoteName), data)
}

func (c *Client) EnsureFolder(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("graph: missing folder name")
	}
	// Drives materialize intermediate folders on upload, so an empty keep
	// marker is enough to create the folder.
	return c.putContent(ctx, path.Join(c.cfg.Folder, name, ".keep"), nil)
}

func (c *Client) putContent(ctx context.Context, drivePath string, data []byte) error {
	segments := strings.Split(drivePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/users/%s/drive/root:/%s:/content",
		c.cfg.BaseURL, url.PathEscape(c.cfg.UserID), strings.Join(segments, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graph http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
