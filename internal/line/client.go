package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const clientTimeout = 10 * time.Second

// APIError is a non-2xx Messaging API response.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line: %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	endpoint string
	http     *http.Client
}

// WithEndpoint points the client at another Messaging API host.
func WithEndpoint(u string) ClientOption {
	return func(s *clientSettings) {
		s.endpoint = u
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(s *clientSettings) {
		s.http = hc
	}
}

// Client sends reply and push messages.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient creates a Messaging API client authenticated with accessToken.
func NewClient(accessToken string, opts ...ClientOption) (*Client, error) {
	s := clientSettings{http: &http.Client{Timeout: clientTimeout}}
	for _, opt := range opts {
		opt(&s)
	}

	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(s.http)}
	if s.endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(s.endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(accessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging client: %w", err)
	}
	return &Client{api: api}, nil
}

// withContext binds ctx to a per-call copy, since the SDK stores the
// context on the client itself.
func (c *Client) withContext(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

// ReplyMessage answers a webhook event via its reply token.
func (c *Client) ReplyMessage(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error {
	res, _, err := c.withContext(ctx).ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return apiError("reply", res, err)
}

// PushMessage sends messages to a user. Each call carries a fresh retry key
// so LINE deduplicates transport-level retries.
func (c *Client) PushMessage(ctx context.Context, to string, messages ...messaging_api.MessageInterface) error {
	res, _, err := c.withContext(ctx).PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: messages,
	}, uuid.NewString())
	return apiError("push", res, err)
}

// PushText pushes a plain text message.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	return c.PushMessage(ctx, to, messaging_api.TextMessage{Text: truncate(text, maxTextRunes)})
}

func apiError(op string, res *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if res == nil || res.StatusCode/100 == 2 {
		return fmt.Errorf("line: %s: %w", op, err)
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return &APIError{Op: op, Status: res.StatusCode, Body: string(body)}
}
