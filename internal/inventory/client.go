package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Defaults for the inventory client.
const (
	DefaultTimeout = 15 * time.Second
	maxPages       = 100
	maxBodyBytes   = 16 << 20
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenProvider supplies the bearer token for inventory requests.
type TokenProvider interface {
	GetToken(ctx context.Context) (*oauth2.Token, error)
}

// invalidator is implemented by token providers that can drop a rejected token.
type invalidator interface {
	Invalidate()
}

// Client fetches the device list of one cloud project.
type Client struct {
	baseURL    string
	projectID  string
	tokens     TokenProvider
	httpClient *http.Client
	timeout    time.Duration
	logger     Logger
}

// NewClient creates an inventory client. timeout bounds each fetch,
// including every page; zero means DefaultTimeout.
func NewClient(baseURL, projectID string, tokens TokenProvider, timeout time.Duration) (*Client, error) {
	if baseURL == "" || projectID == "" || tokens == nil {
		return nil, fmt.Errorf("%w: base url, project id and token provider are required", ErrInvalidConfig)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetHTTPClient replaces the HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// devicesPage is one page of the list-devices response.
type devicesPage struct {
	Devices       []json.RawMessage `json:"devices"`
	NextPageToken string            `json:"nextPageToken"`
}

// Fetch returns every device in the project. Token failures are returned
// as-is (they wrap credential.ErrAuth); everything else wraps ErrFetch.
// Individual devices that cannot be decoded are skipped and logged.
func (c *Client) Fetch(ctx context.Context) ([]device.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var descriptors []device.Descriptor
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		tok, err := c.tokens.GetToken(ctx)
		if err != nil {
			return nil, err
		}

		var body devicesPage
		if err := c.getJSON(ctx, c.devicesURL(tok.AccessToken, pageToken), &body); err != nil {
			return nil, err
		}

		for _, raw := range body.Devices {
			var d device.Descriptor
			if err := json.Unmarshal(raw, &d); err != nil || d.ID == "" {
				c.logger.Warn("skipping undecodable device", "error", err, "raw", truncate(string(raw), 200))
				continue
			}
			descriptors = append(descriptors, d)
		}

		if body.NextPageToken == "" {
			c.logger.Debug("inventory fetched", "devices", len(descriptors), "pages", page+1)
			return descriptors, nil
		}
		pageToken = body.NextPageToken
	}

	return nil, fmt.Errorf("%w: more than %d pages", ErrFetch, maxPages)
}

func (c *Client) devicesURL(token, pageToken string) string {
	q := url.Values{}
	q.Set("token", token)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	return fmt.Sprintf("%s/projects/%s/devices?%s", c.baseURL, url.PathEscape(c.projectID), q.Encode())
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFetch, redact(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrFetch, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if inv, ok := c.tokens.(invalidator); ok {
			inv.Invalidate()
		}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrFetch, resp.StatusCode, truncate(strings.TrimSpace(string(body)), 500))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrFetch, err)
	}
	return nil
}

// redact removes the token query parameter from transport error messages.
func redact(msg string) string {
	i := strings.Index(msg, "token=")
	if i < 0 {
		return msg
	}
	end := strings.IndexAny(msg[i:], "&\" ")
	if end < 0 {
		return msg[:i] + "token=REDACTED"
	}
	return msg[:i] + "token=REDACTED" + msg[i+end:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
