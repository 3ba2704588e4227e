package bosun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"videowall/pkg/api/bosun"
	"videowall/pkg/api/common"
	"videowall/pkg/clients"
	"videowall/pkg/logging"
)

// APIError is returned for non-2xx responses, carrying the coordinator's
// error code when the body had one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bosun returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bosun returned status %d", e.StatusCode)
}

// Client represents a Bosun API client
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
	logger       logging.Logger
}

// Config represents the configuration for the Bosun client
type Config struct {
	BaseURL              string
	ServiceToken         string
	Timeout              time.Duration
	Logger               logging.Logger
	ExecutorConfig       *clients.HTTPExecutorConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new Bosun API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	execCfg := clients.DefaultHTTPExecutorConfig()
	if config.ExecutorConfig != nil {
		execCfg = *config.ExecutorConfig
	}
	if execCfg.ShouldRetry == nil {
		execCfg.ShouldRetry = clients.DefaultShouldRetry
	}
	if config.CircuitBreakerConfig != nil {
		cbCfg := *config.CircuitBreakerConfig
		if cbCfg.Name == "" {
			cbCfg.Name = "bosun"
		}
		if cbCfg.OnStateChange == nil {
			cbCfg.OnStateChange = clients.CircuitBreakerMetricsCallback(cbCfg.Name)
		}
		execCfg.CircuitBreaker = clients.NewCircuitBreaker(cbCfg)
	}

	return &Client{
		baseURL:      config.BaseURL,
		serviceToken: config.ServiceToken,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: clients.DefaultTransport(),
		},
		httpExecutor: clients.NewHTTPExecutor(execCfg),
		shouldRetry:  execCfg.ShouldRetry,
		logger:       config.Logger,
	}
}

func (c *Client) doRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.httpExecutor == nil {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	}

	return clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}

// doJSON runs one API call: optional JSON body in, decoded JSON out. The
// request is rebuilt per retry attempt so the body reader is always fresh.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.serviceToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.serviceToken)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("failed to call bosun: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body common.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"status_code": resp.StatusCode,
			"code":        apiErr.Code,
		}).Debug("Bosun API call failed")
	}
	return apiErr
}

// Register announces a display client to the coordinator.
func (c *Client) Register(ctx context.Context, req *bosun.RegisterClientRequest) (*bosun.RegisterClientResponse, error) {
	var out bosun.RegisterClientResponse
	if err := c.doJSON(ctx, http.MethodPost, "/clients", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat refreshes a client's liveness window.
func (c *Client) Heartbeat(ctx context.Context, clientID string) error {
	return c.doJSON(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/heartbeat", nil, nil)
}

// ListClients returns all clients, optionally filtered by group.
func (c *Client) ListClients(ctx context.Context, groupID string) ([]bosun.ClientView, error) {
	return c.listClients(ctx, groupID, false)
}

// ListActiveClients returns only clients inside the liveness window,
// optionally filtered by group.
func (c *Client) ListActiveClients(ctx context.Context, groupID string) ([]bosun.ClientView, error) {
	return c.listClients(ctx, groupID, true)
}

func (c *Client) listClients(ctx context.Context, groupID string, activeOnly bool) ([]bosun.ClientView, error) {
	q := url.Values{}
	if groupID != "" {
		q.Set("group_id", groupID)
	}
	if activeOnly {
		q.Set("active", "true")
	}
	path := "/clients"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out struct {
		Clients []bosun.ClientView `json:"clients"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

// GetClient fetches one client.
func (c *Client) GetClient(ctx context.Context, clientID string) (*bosun.ClientView, error) {
	var out bosun.ClientView
	if err := c.doJSON(ctx, http.MethodGet, "/clients/"+url.PathEscape(clientID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveClient deletes a client and frees its seat.
func (c *Client) RemoveClient(ctx context.Context, clientID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/clients/"+url.PathEscape(clientID), nil, nil)
}

// AssignGroup moves a client into a group; a nil groupID detaches it.
func (c *Client) AssignGroup(ctx context.Context, clientID string, groupID *string) (*bosun.ClientView, error) {
	var out bosun.ClientView
	req := bosun.AssignGroupRequest{GroupID: groupID}
	if err := c.doJSON(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/group", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignStream pins a client to a stream slot; an empty streamID lets the
// coordinator pick.
func (c *Client) AssignStream(ctx context.Context, clientID, streamID string) (*bosun.ClientView, error) {
	var out bosun.ClientView
	req := bosun.AssignStreamRequest{StreamID: streamID}
	if err := c.doJSON(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/stream", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignVideo points a client at a local video file.
func (c *Client) AssignVideo(ctx context.Context, clientID, videoFile string) (*bosun.ClientView, error) {
	var out bosun.ClientView
	req := bosun.AssignVideoRequest{VideoFile: videoFile}
	if err := c.doJSON(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/video", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAssignment fetches what a client should pull and how to crop it.
func (c *Client) GetAssignment(ctx context.Context, clientID string) (*bosun.AssignmentView, error) {
	var out bosun.AssignmentView
	if err := c.doJSON(ctx, http.MethodGet, "/clients/"+url.PathEscape(clientID)+"/assignment", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGroups returns all wall groups.
func (c *Client) ListGroups(ctx context.Context) ([]bosun.GroupView, error) {
	var out struct {
		Groups []bosun.GroupView `json:"groups"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/groups", nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// CreateGroup creates a wall group.
func (c *Client) CreateGroup(ctx context.Context, req *bosun.CreateGroupRequest) (*bosun.GroupView, error) {
	var out bosun.GroupView
	if err := c.doJSON(ctx, http.MethodPost, "/groups", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGroup fetches one group.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*bosun.GroupView, error) {
	var out bosun.GroupView
	if err := c.doJSON(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGroup patches group fields.
func (c *Client) UpdateGroup(ctx context.Context, groupID string, req *bosun.UpdateGroupRequest) (*bosun.GroupView, error) {
	var out bosun.GroupView
	if err := c.doJSON(ctx, http.MethodPut, "/groups/"+url.PathEscape(groupID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGroup removes a group and detaches its members.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/groups/"+url.PathEscape(groupID), nil, nil)
}

// StartStream marks a group live and plans its layout.
func (c *Client) StartStream(ctx context.Context, groupID string, req *bosun.StartStreamRequest) (*bosun.GroupView, error) {
	var out bosun.GroupView
	if err := c.doJSON(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/stream/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopStream halts a group's wall output.
func (c *Client) StopStream(ctx context.Context, groupID string) (*bosun.GroupView, error) {
	var out bosun.GroupView
	if err := c.doJSON(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/stream/stop", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLayout fetches the planned viewports of a streaming group.
func (c *Client) GetLayout(ctx context.Context, groupID string) (*bosun.LayoutResponse, error) {
	var out bosun.LayoutResponse
	if err := c.doJSON(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/layout", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reports registry totals and per-status breakdowns.
func (c *Client) Status(ctx context.Context) (*bosun.StatusResponse, error) {
	var out bosun.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
