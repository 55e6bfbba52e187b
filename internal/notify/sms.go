package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"answering-platform/internal/config"
)

// SMSSender sends texts through a Twilio-compatible REST gateway.
type SMSSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewSMSSender(cfg config.SMSConfig) *SMSSender {
	return &SMSSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    "https://api.twilio.com",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the gateway credentials are present. The
// dispatcher skips SMS silently when they are not; local and staging
// environments usually run without them.
func (s *SMSSender) Configured() bool {
	return s.accountSID != "" && s.authToken != "" && s.from != ""
}

// Send posts one message. to must be E.164.
func (s *SMSSender) Send(ctx context.Context, to, body string) error {
	if !s.Configured() {
		return fmt.Errorf("sms: gateway not configured")
	}
	if to == "" || body == "" {
		return fmt.Errorf("sms: to and body required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.baseURL, "/"), s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("sms: gateway returned %d", resp.StatusCode)
}
