package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPStatusChecker checks access via the status endpoint over HTTP.
type HTTPStatusChecker struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStatusChecker creates a checker against the given API base URL.
// The token authenticates the purchaser whose access is being confirmed.
func NewHTTPStatusChecker(baseURL, token string) *HTTPStatusChecker {
	return &HTTPStatusChecker{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type statusResponse struct {
	HasAccess bool `json:"has_access"`
}

// HasAccess queries GET /access/status. The session id is forwarded when
// present but the endpoint resolves access from the program and caller
// identity alone.
func (c *HTTPStatusChecker) HasAccess(ctx context.Context, programID, sessionID string) (bool, error) {
	query := url.Values{}
	query.Set("program_id", programID)
	if sessionID != "" {
		query.Set("session_id", sessionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/access/status?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}

	return status.HasAccess, nil
}
