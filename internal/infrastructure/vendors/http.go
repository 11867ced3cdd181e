package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"homehub/internal/core/domain"
)

// restClient is the shared JSON-over-HTTP plumbing for vendor cloud
// APIs. Vendor-specific routes and payloads live in the concrete
// clients; status-to-error mapping is uniform across vendors.
type restClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRESTClient(baseURL string, timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &restClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func isAuthErr(err error) bool {
	return errors.Is(err, domain.ErrAuthRejected)
}

// doJSON issues one request and decodes the response into out (when out
// is non-nil). Transport failures and 5xx responses surface as
// domain.ErrVendorUnavailable, 401/403 as domain.ErrAuthRejected.
func (c *restClient) doJSON(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: vendor returned %d", domain.ErrAuthRejected, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: vendor returned %d", domain.ErrVendorUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("vendor returned %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: undecodable vendor response", domain.ErrVendorUnavailable)
	}
	return nil
}
