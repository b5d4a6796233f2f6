package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulgrammer/comfyrelay/internal/workflow"
)

const syncCallTimeout = 5 * time.Minute

// Client talks to one serverless queue endpoint. All calls go direct:
// the transport ignores ambient proxy configuration so a stray
// HTTPS_PROXY cannot sit between the gateway and the compute provider.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for {apiBase}/{endpointID}.
func NewClient(apiBase, endpointID, token string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("%s/%s", apiBase, endpointID),
		token:   token,
		http: &http.Client{
			Timeout: syncCallTimeout,
			Transport: &http.Transport{
				Proxy: nil,
			},
		},
	}
}

type submitBody struct {
	Input submitInput `json:"input"`
}

type submitInput struct {
	Workflow workflow.Template     `json:"workflow"`
	Images   []workflow.InputImage `json:"images,omitempty"`
}

// RunSync submits the request and blocks until the remote call itself
// returns. The endpoint holds the connection while the job runs, so the
// response is usually already terminal; callers still have to check.
func (c *Client) RunSync(ctx context.Context, req *workflow.Request) (*JobState, error) {
	return c.submit(ctx, c.baseURL+"/runsync", req)
}

// Run submits the request and returns immediately with a remote job id
// to poll.
func (c *Client) Run(ctx context.Context, req *workflow.Request) (*JobState, error) {
	return c.submit(ctx, c.baseURL+"/run", req)
}

func (c *Client) submit(ctx context.Context, url string, req *workflow.Request) (*JobState, error) {
	body, err := json.Marshal(submitBody{Input: submitInput{Workflow: req.Workflow, Images: req.Images}})
	if err != nil {
		return nil, &SubmissionError{Endpoint: url, Err: err}
	}

	start := time.Now()
	state, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{Endpoint: url, Err: err}
	}
	slog.Info("workflow submitted",
		"url", url,
		"remote_id", state.ID,
		"status", state.Status,
		"payload_bytes", len(body),
		"images", len(req.Images),
		"duration", time.Since(start).String(),
	)
	return state, nil
}

// Status fetches the current state of a remote job.
func (c *Client) Status(ctx context.Context, remoteID string) (*JobState, error) {
	start := time.Now()
	state, err := c.do(ctx, http.MethodGet, c.baseURL+"/status/"+remoteID, nil)
	if err != nil {
		return nil, &StatusQueryError{JobID: remoteID, Err: err}
	}
	slog.Debug("status query",
		"remote_id", remoteID,
		"status", state.Status,
		"duration", time.Since(start).String(),
	)
	return state, nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*JobState, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("endpoint returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}

	var state JobState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &state, nil
}
