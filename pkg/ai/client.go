// Package ai talks to the remote test-case generation service.
package ai

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
)

// ErrUpstream indicates the generation endpoint returned a failure status
// or the connection failed. Callers never retry; the user re-submits.
var ErrUpstream = errors.New("generation service error")

const (
	blockingTimeout = 200 * time.Second
	// Project payloads are larger and streaming needs headroom for
	// time-to-first-byte plus multi-minute generation.
	extendedTimeout = 600 * time.Second
)

// Request is one generation request before serialization. Blocking and
// streaming calls serialize it differently; see Compose helpers.
type Request struct {
	Requirement string
	Context     string
}

// ComposeBlocking merges optional context into the requirement text, the
// shape the blocking endpoint expects.
func ComposeBlocking(userText, contextText string) Request {
	if strings.TrimSpace(contextText) != "" {
		return Request{Requirement: fmt.Sprintf("CONTEXTO:\n%s\nREQUERIMIENTO:\n%s", contextText, userText)}
	}
	return Request{Requirement: userText}
}

// ComposeStream keeps context as a separate field; the streaming endpoint
// distinguishes the two request shapes.
func ComposeStream(userText, contextText string) Request {
	return Request{Requirement: userText, Context: contextText}
}

// Client calls the remote generation endpoint in blocking or streaming mode.
type Client struct {
	baseURL        string
	blockingClient *http.Client
	extendedClient *http.Client
}

// NewClient constructs a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		blockingClient: &http.Client{Timeout: blockingTimeout},
		extendedClient: &http.Client{Timeout: extendedTimeout},
	}
}

type blockingPayload struct {
	Requirement string `json:"requirement"`
}

type streamPayload struct {
	Requirement string `json:"requirement"`
	Context     string `json:"context"`
	Stream      bool   `json:"stream"`
}

type projectPayload struct {
	ProjectContent string `json:"project_content"`
}

type generateResponse struct {
	TestCases string `json:"test_cases"`
}

// Generate performs a single blocking generation call and returns the
// generated test cases, or empty string when the field is absent.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	return c.doBlocking(ctx, c.blockingClient, "/generate", blockingPayload{Requirement: req.Requirement})
}

// GenerateProject sends extracted project content to the project endpoint.
// The larger payload justifies the longer timeout budget.
func (c *Client) GenerateProject(ctx context.Context, content string) (string, error) {
	return c.doBlocking(ctx, c.extendedClient, "/generate-project", projectPayload{ProjectContent: content})
}

func (c *Client) doBlocking(ctx context.Context, client *http.Client, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %s returned %s", ErrUpstream, path, resp.Status)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return out.TestCases, nil
}

// GenerateStream opens a streaming generation call. The status is checked
// before any line is yielded; a non-success status fails with ErrUpstream.
// The returned stream is forward-only and non-restartable; the caller must
// Close it to release the upstream connection.
func (c *Client) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	payload := streamPayload{Requirement: req.Requirement, Context: req.Context, Stream: true}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.extendedClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: /generate returned %s", ErrUpstream, resp.Status)
	}
	return newStream(resp.Body, cancel), nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
