// Package provider calls an OpenAI-compatible chat completions endpoint and
// maps transport failures onto the compiler error taxonomy. It returns the
// raw message text; compiling it is the pipeline's job.
package provider

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"artifact-compiler/internal/common/errors"
	httpclient "artifact-compiler/internal/common/http"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Provider    string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

type Client struct {
	config Config
	http   *httpclient.Client
	now    func() time.Time
}

func New(config Config) *Client {
	if config.Provider == "" {
		config.Provider = "openai-compatible"
	}
	return &Client{
		config: config,
		http:   httpclient.NewClient(0),
		now:    time.Now,
	}
}

// Provider names the backend in errors and logs.
func (c *Client) Provider() string {
	return c.config.Provider
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends one system and one user message and returns the content
// of the first choice. An empty string is a valid result.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req := chatRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if system != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: prompt})

	headers := map[string]string{}
	if c.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.config.APIKey
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	resp, err := c.http.PostJSON(ctx, url, headers, req)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	if err := c.statusError(resp); err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		// a 2xx with a body we cannot read is reported as a bad gateway
		return "", errors.NewAPIError(http.StatusBadGateway, c.config.Provider, "undecodable response: "+err.Error()).WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if stderrors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return err
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewTimeoutError(c.config.Provider, err)
	}
	return errors.NewConnectionError(c.config.Provider, err)
}

func (c *Client) statusError(resp *httpclient.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(c.config.Provider, c.retryAfter(resp.Header.Get("Retry-After")), excerpt(resp.Body))
	default:
		return errors.NewAPIError(resp.StatusCode, c.config.Provider, excerpt(resp.Body))
	}
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func (c *Client) retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(c.now()); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func excerpt(body []byte) string {
	return errors.Truncate(strings.TrimSpace(string(body)), errors.MaxDetailsExcerpt)
}

// Caller adapts Complete to the pipeline's per-attempt call.
func (c *Client) Caller(system, prompt string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return c.Complete(ctx, system, prompt)
	}
}
