package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// jsonClient wraps provider calls and classifies transport failures as
// domain.ErrGatewayUnavailable. 4xx answers are decoded and returned to the caller.
type jsonClient struct {
	name string
	http *http.Client
}

func newJSONClient(name string, client *http.Client, timeout time.Duration) *jsonClient {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &jsonClient{name: name, http: client}
}

func (c *jsonClient) do(ctx context.Context, req *http.Request, out any) (int, error) {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, domain.NewGatewayUnavailable(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, domain.NewGatewayUnavailable(c.name, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, domain.NewGatewayUnavailable(c.name, fmt.Errorf("status %d", resp.StatusCode))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, domain.NewGatewayUnavailable(c.name, fmt.Errorf("decode status %d body: %w", resp.StatusCode, err))
		}
	}

	return resp.StatusCode, nil
}
