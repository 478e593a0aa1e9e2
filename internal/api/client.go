// Package api is the HTTP client for the chat service: REST calls and the push stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xonecas/parley/internal/chat"
)

const apiPrefix = "/api/v1"

// Client talks to the chat service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no timeout; push streams stay open indefinitely.
	streamClient *http.Client
	limiter      *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each REST request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithSendRate limits create-message calls. A non-positive limit disables limiting.
func WithSendRate(limit float64, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithHTTPClient replaces the transport used for REST calls and streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = &http.Client{Transport: hc.Transport}
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + apiPrefix + "/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Classify(ctx.Err())
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	data, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

// VerifyIdentity asks the service who the current token belongs to.
func (c *Client) VerifyIdentity(ctx context.Context) (*chat.User, error) {
	var user chat.User
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("user", "verify"), struct{}{}, &user); err != nil {
		return nil, err
	}
	if !user.Valid {
		return nil, &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Detail: "identity is not valid"}
	}
	return &user, nil
}

// ListConversations returns the caller's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var convs []chat.Conversation
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("chat")+"/", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// CreateConversation creates a named conversation.
func (c *Client) CreateConversation(ctx context.Context, name string) (*chat.Conversation, error) {
	var conv chat.Conversation
	req := chat.CreateConversationRequest{Name: name}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("chat")+"/", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FetchHistory returns every stored message of a conversation, oldest first.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	data, err := c.do(ctx, http.MethodGet, c.endpoint("message", "chat", conversationID), nil)
	if err != nil {
		return nil, err
	}
	msgs, err := chat.DecodeMessages(data)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	return msgs, nil
}

// CreateMessage submits user content and returns the records the service created.
// The service answers with either a single record or a list of records.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content string) ([]chat.Message, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Classify(err)
		}
	}

	req := chat.CreateMessageRequest{ConversationID: chat.ID(conversationID), Content: content}
	data, err := c.do(ctx, http.MethodPost, c.endpoint("message")+"/", req)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

func decodeRecords(data []byte) ([]chat.Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		msgs, err := chat.DecodeMessages(trimmed)
		if err != nil {
			return nil, &Error{Kind: KindDecode, Err: err}
		}
		return msgs, nil
	}
	m, err := chat.DecodeMessage(trimmed)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	return []chat.Message{m}, nil
}
