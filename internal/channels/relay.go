package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxRelayErrorBody = 512

// RelayChannel POSTs replies as JSON to a relay service for one platform.
type RelayChannel struct {
	name   string
	url    string
	token  string
	client *http.Client
}

func NewRelayChannel(name, url, token string, timeout time.Duration) *RelayChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayChannel{
		name:   name,
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *RelayChannel) Name() string { return c.name }

func (c *RelayChannel) Send(ctx context.Context, msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s relay: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxRelayErrorBody))
		return fmt.Errorf("%s relay: HTTP %d: %s", c.name, resp.StatusCode, bytes.TrimSpace(data))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
