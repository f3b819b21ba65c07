// Package telegram is a small Bot API client: sending, deleting and long-polling messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

const (
	defaultAPIURL  = "https://api.telegram.org"
	requestTimeout = 30 * time.Second
)

// Client calls the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL points the client at another Bot API server.
func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.apiURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Bot API client for token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.AuthError("telegram bot token is required").Build()
	}
	c := &Client{
		httpClient: &http.Client{},
		apiURL:     defaultAPIURL,
		token:      token,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendMessage posts text to chatID. parseMode may be empty for plain text.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) (Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode}, &msg, requestTimeout)
	return msg, err
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	var ok bool
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, &ok, requestTimeout)
}

// SendChatAction shows a transient status such as "typing".
func (c *Client) SendChatAction(ctx context.Context, chatID, action string) error {
	var ok bool
	return c.call(ctx, "sendChatAction", chatActionRequest{ChatID: chatID, Action: action}, &ok, requestTimeout)
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	err := c.call(ctx, "getUpdates", req, &updates, timeout+requestTimeout)
	return updates, err
}

func (c *Client) call(ctx context.Context, method string, payload, result any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.InternalError("failed to encode telegram request").WithCause(err).Build()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.NotifyError("failed to create telegram request").
			WithCause(err).
			WithContext("method", method).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors embed the URL, which carries the token.
		return errors.NetworkError("telegram request failed").
			WithCause(redact(err, c.token)).
			WithContext("method", method).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.NetworkError("failed to read telegram response").
			WithCause(err).
			WithContext("method", method).
			Build()
	}

	env := apiResponse[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.NotifyError("invalid telegram response").
			WithCause(err).
			WithContext("method", method).
			WithContext("code", resp.StatusCode).
			Build()
	}
	if !env.OK {
		return apiError(method, resp.StatusCode, env)
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return errors.NotifyError("failed to decode telegram result").
				WithCause(err).
				WithContext("method", method).
				Build()
		}
	}

	c.logger.Debug("Telegram call", logfields.Method(method), logfields.Status(resp.StatusCode))
	return nil
}

func apiError(method string, status int, env apiResponse[json.RawMessage]) error {
	code := env.ErrorCode
	if code == 0 {
		code = status
	}
	msg := fmt.Sprintf("telegram %s failed: %s", method, env.Description)

	var b *errors.ErrorBuilder
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		b = errors.AuthError(msg)
	case code == http.StatusTooManyRequests:
		b = errors.NotifyError(msg).RateLimit()
		if env.Parameters != nil {
			b = b.WithContext("retry_after", env.Parameters.RetryAfter)
		}
	case code >= 500:
		b = errors.NotifyError(msg)
	default:
		b = errors.NotifyError(msg).WithRetry(errors.RetryNever)
	}
	return b.
		WithContext("method", method).
		WithContext("code", code).
		WithContext("description", env.Description).
		Build()
}

// IsParseError reports whether err is Telegram rejecting message entities,
// which means the text should be resent without a parse mode.
func IsParseError(err error) bool {
	ce, ok := errors.AsClassified(err)
	if !ok {
		return false
	}
	desc, _ := ce.Context().GetString("description")
	return strings.Contains(strings.ToLower(desc), "can't parse entities")
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>")}
}
