package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/vera/client/internal/config"
	"github.com/zhouzirui/vera/client/internal/model/chat"
)

// MaxResponseBytes bounds how much of a reply body is read.
const MaxResponseBytes = 4 << 20

var (
	ErrNotConfigured = errors.New("conversation: assistant endpoint or api key not configured")
	ErrNetwork       = errors.New("conversation: network error")
)

// StatusError reports a non-2xx answer from the assistant endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("conversation: assistant returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrNetwork) match status failures.
func (e *StatusError) Unwrap() error { return ErrNetwork }

// Client sends user turns to the remote assistant endpoint.
type Client struct {
	cfg        config.AssistantConfig
	httpClient *http.Client
}

// NewClient builds a client; missing URL or key surface on the first call.
func NewClient(cfg config.AssistantConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// SendTurn posts one utterance, attaching sessionToken when non-empty.
// It never retries; the caller decides.
func (c *Client) SendTurn(ctx context.Context, text, sessionToken string) (chat.TurnReply, error) {
	endpoint := strings.TrimSpace(c.cfg.URL)
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	if endpoint == "" || apiKey == "" {
		return chat.TurnReply{}, ErrNotConfigured
	}

	payload, err := json.Marshal(chat.TurnRequest{Message: text, SessionID: sessionToken})
	if err != nil {
		return chat.TurnReply{}, fmt.Errorf("conversation: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return chat.TurnReply{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chat.TurnReply{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return chat.TurnReply{}, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chat.TurnReply{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var decoded chat.TurnResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return chat.TurnReply{}, fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	if strings.TrimSpace(decoded.Response) == "" {
		return chat.TurnReply{}, fmt.Errorf("%w: response has no reply text", ErrNetwork)
	}

	return chat.TurnReply{Text: decoded.Response, SessionToken: decoded.SessionID}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
