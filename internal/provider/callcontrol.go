package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"answering-platform/internal/config"
)

// CallControl terminates live calls at the provider.
//
// Termination is advisory: status webhooks fire after a call has already
// connected, so neither request is guaranteed to land before the caller
// hears the assistant. DELETE is tried first; some provider deployments
// only accept a PATCH to ended status.
type CallControl struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewCallControl(cfg config.ProviderConfig) *CallControl {
	return &CallControl{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Terminate attempts DELETE then PATCH on /call/{id}. It returns the first
// success, or the PATCH error when both fail.
func (c *CallControl) Terminate(ctx context.Context, providerCallID string) error {
	if c.apiKey == "" {
		return fmt.Errorf("call control: api key not configured")
	}
	if providerCallID == "" {
		return fmt.Errorf("call control: call id required")
	}

	url := fmt.Sprintf("%s/call/%s", c.baseURL, providerCallID)

	if err := c.do(ctx, http.MethodDelete, url, nil); err == nil {
		return nil
	}

	body := []byte(`{"status":"ended"}`)
	if err := c.do(ctx, http.MethodPatch, url, body); err != nil {
		return fmt.Errorf("call control: terminate %s: %w", providerCallID, err)
	}
	return nil
}

func (c *CallControl) do(ctx context.Context, method, url string, body []byte) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
}
