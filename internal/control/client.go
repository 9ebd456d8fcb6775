package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the control API of a running instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the instance at address (host:port).
func NewClient(address string) *Client {
	return &Client{
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Do sends intent and returns the resulting status. A non-2xx response is
// returned as an error together with the decoded status when available.
func (client *Client) Do(ctx context.Context, intent Intent) (Status, error) {
	method := http.MethodPost
	endpoint := client.baseURL + "/v1/" + string(intent.Action)
	if intent.Action == ActionStatus {
		method = http.MethodGet
	}
	if query := intent.Values().Encode(); query != "" {
		endpoint += "?" + query
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build %s request: %w", intent.Action, err)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return Status{}, fmt.Errorf("send %s request: %w", intent.Action, err)
	}
	defer func() { _ = response.Body.Close() }()

	var status Status
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("decode %s response (HTTP %d): %w", intent.Action, response.StatusCode, err)
	}
	if response.StatusCode/100 != 2 {
		message := strings.TrimSpace(status.Error)
		if message == "" {
			message = http.StatusText(response.StatusCode)
		}
		return status, fmt.Errorf("%s failed (HTTP %d): %s", intent.Action, response.StatusCode, message)
	}
	return status, nil
}

// Status returns the current engine status.
func (client *Client) Status(ctx context.Context) (Status, error) {
	return client.Do(ctx, Intent{Action: ActionStatus})
}
