package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// StatusError is returned when the agent answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Client represents an agent client
type Client struct {
	config     ClientConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:  config,
		baseURL: "https://" + net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
			Timeout: timeout,
		},
	}, nil
}

// Get fetches endpoint, a path relative to the agent root with an optional
// query, and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// Health checks if the agent is healthy
func (c *Client) Health(ctx context.Context) error {
	body, err := c.Get(ctx, "health")
	if err != nil {
		return err
	}
	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}
	return nil
}

// Devices lists the agent's disks.
func (c *Client) Devices(ctx context.Context) ([]DeviceStatus, error) {
	var out []DeviceStatus
	if err := c.getJSON(ctx, "devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Smart reads the SMART table of one disk on the agent.
func (c *Client) Smart(ctx context.Context, path string) (*SmartReport, error) {
	var out SmartReport
	if err := c.getJSON(ctx, "devices/smart?path="+url.QueryEscape(path), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Host returns the agent's host information.
func (c *Client) Host(ctx context.Context) (*host.InfoStat, error) {
	var out host.InfoStat
	if err := c.getJSON(ctx, "host", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
