package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WorkflowTrigger posts JSON events to org-configured automation webhooks
// (Zapier-style endpoints). Fire and forget; the receiving side owns retries.
type WorkflowTrigger struct {
	client *http.Client
}

func NewWorkflowTrigger() *WorkflowTrigger {
	return &WorkflowTrigger{client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WorkflowTrigger) Trigger(ctx context.Context, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("workflow: url required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("workflow: endpoint returned %d", resp.StatusCode)
}
