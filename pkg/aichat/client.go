// Package aichat talks to the session-authenticated chat completion endpoint used for homework review.
package aichat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxErrorBody = 512

var (
	// ErrUnauthorized is returned when the endpoint rejects the session token.
	ErrUnauthorized = errors.New("ai endpoint rejected session")
	// ErrNoSession is returned when login succeeds without a usable session cookie.
	ErrNoSession = errors.New("login response carried no session cookie")

	sessionPattern = regexp.MustCompile(`session=([^;]+)`)
)

// StatusError reports a non-200 response from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ai endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("ai endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Is lets callers match 401 and 403 responses with ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Config configures endpoints, credentials and timeouts.
type Config struct {
	ChatURL      string
	LoginURL     string
	Username     string
	Password     string
	APIUser      string
	LoginTimeout time.Duration
	ChatTimeout  time.Duration
}

// Client issues login and streaming chat calls.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient builds a client. A nil httpClient uses a default transport; per-call timeouts come from cfg.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, client: httpClient}
}

// Login posts the configured credentials and returns the session token from Set-Cookie.
func (c *Client) Login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoginTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	for _, header := range resp.Header.Values("Set-Cookie") {
		if match := sessionPattern.FindStringSubmatch(header); len(match) == 2 && match[1] != "" {
			return match[1], nil
		}
	}
	return "", ErrNoSession
}

// StreamChat sends a streamed completion request and returns the concatenated delta text.
func (c *Client) StreamChat(ctx context.Context, token string, request ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	request.Stream = true
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "session="+token)
	if c.cfg.APIUser != "" {
		req.Header.Set("New-Api-User", c.cfg.APIUser)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	return ReadStream(resp.Body)
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ReadStream concatenates choices[0].delta.content from server-sent event lines until [DONE] or EOF.
// Lines that are not valid JSON chunks are skipped.
func ReadStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			content.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return content.String(), fmt.Errorf("read chat stream: %w", err)
	}
	return content.String(), nil
}
