// ABOUTME: Channel connector contract and the HTTP implementation of it
// ABOUTME: Posts activities as JSON to the conversation endpoints of a channel service

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
)

// Connector errors
var (
	ErrMissingServiceURL   = errors.New("activity service url is required")
	ErrMissingConversation = errors.New("activity conversation id is required")
)

// Connector performs channel I/O. scope is the audience for the caller's
// credentials.
type Connector interface {
	SendToConversation(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, scope string, ref activity.ConversationReference) error
}

// TokenSource provides bearer tokens for a scope.
type TokenSource interface {
	Token(ctx context.Context, scope string) (string, error)
}

// HTTPError is a non-2xx response from the channel service.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTPConnector implements Connector against the channel REST API.
type HTTPConnector struct {
	client *http.Client
	tokens TokenSource
	logger *slog.Logger
}

// HTTPOption configures an HTTPConnector.
type HTTPOption func(*HTTPConnector)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPConnector) { c.client = client }
}

// WithConnectorLogger sets the logger.
func WithConnectorLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPConnector) { c.logger = logger }
}

// NewHTTPConnector creates a connector. A nil TokenSource sends requests
// without an Authorization header.
func NewHTTPConnector(tokens TokenSource, opts ...HTTPOption) *HTTPConnector {
	c := &HTTPConnector{
		client: &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "connector")
	return c
}

// SendToConversation posts a to the end of its conversation.
func (c *HTTPConnector) SendToConversation(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	endpoint, err := activitiesURL(a.ServiceURL, conversationIDOf(a))
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return c.doActivity(ctx, http.MethodPost, endpoint, scope, a)
}

// ReplyToActivity posts a as a reply to a.ReplyToID.
func (c *HTTPConnector) ReplyToActivity(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	endpoint, err := activitiesURL(a.ServiceURL, conversationIDOf(a), a.ReplyToID)
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return c.doActivity(ctx, http.MethodPost, endpoint, scope, a)
}

// UpdateActivity replaces the activity with a.ID.
func (c *HTTPConnector) UpdateActivity(ctx context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	if a.ID == "" {
		return activity.ResourceResponse{}, errors.New("activity id is required for update")
	}
	endpoint, err := activitiesURL(a.ServiceURL, conversationIDOf(a), a.ID)
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return c.doActivity(ctx, http.MethodPut, endpoint, scope, a)
}

// DeleteActivity deletes the activity the reference points at.
func (c *HTTPConnector) DeleteActivity(ctx context.Context, scope string, ref activity.ConversationReference) error {
	conv := ""
	if ref.Conversation != nil {
		conv = ref.Conversation.ID
	}
	endpoint, err := activitiesURL(ref.ServiceURL, conv, ref.ActivityID)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, endpoint, scope, nil)
	return err
}

func (c *HTTPConnector) doActivity(ctx context.Context, method, endpoint, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("encoding activity: %w", err)
	}
	data, err := c.do(ctx, method, endpoint, scope, body)
	if err != nil {
		return activity.ResourceResponse{}, err
	}

	var resp activity.ResourceResponse
	if len(bytes.TrimSpace(data)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("decoding resource response: %w", err)
	}
	return resp, nil
}

func (c *HTTPConnector) do(ctx context.Context, method, endpoint, scope string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("getting token for %s: %w", scope, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("channel request failed",
			"method", method,
			"url", endpoint,
			"status", resp.StatusCode,
		)
		return nil, &HTTPError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func conversationIDOf(a *activity.Activity) string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// activitiesURL builds {serviceUrl}/v3/conversations/{conversationId}/activities[/{activityId}].
func activitiesURL(serviceURL, conversationID string, activityID ...string) (string, error) {
	if serviceURL == "" {
		return "", ErrMissingServiceURL
	}
	if conversationID == "" {
		return "", ErrMissingConversation
	}
	if _, err := url.Parse(serviceURL); err != nil {
		return "", fmt.Errorf("parsing service url: %w", err)
	}

	endpoint := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if len(activityID) > 0 && activityID[0] != "" {
		endpoint += "/" + url.PathEscape(activityID[0])
	}
	return endpoint, nil
}
