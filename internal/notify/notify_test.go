package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"answering-platform/internal/config"
	"answering-platform/internal/leads"
	"answering-platform/pkg/logger"
	"answering-platform/pkg/metrics"
)

func TestSMSSender_Send(t *testing.T) {
	var gotPath, gotAuthUser, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuthUser, _, _ = r.BasicAuth()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewSMSSender(config.SMSConfig{AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15550000001"})
	s.baseURL = srv.URL

	if err := s.Send(context.Background(), "+15550009999", "New lead: Dana Fox"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuthUser != "AC123" {
		t.Fatalf("basic auth user = %q", gotAuthUser)
	}
	if !strings.Contains(gotBody, "To=%2B15550009999") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestSMSSender_SendRejectsUnconfigured(t *testing.T) {
	s := NewSMSSender(config.SMSConfig{})
	if err := s.Send(context.Background(), "+15550009999", "hi"); err == nil {
		t.Fatal("expected error for unconfigured gateway")
	}
}

func TestSMSSender_SendGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSMSSender(config.SMSConfig{AccountSID: "AC123", AuthToken: "bad", FromNumber: "+15550000001"})
	s.baseURL = srv.URL

	if err := s.Send(context.Background(), "+15550009999", "hi"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestWorkflowTrigger_Trigger(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWorkflowTrigger()
	err := w.Trigger(context.Background(), srv.URL, map[string]string{"event": "lead.created", "lead_id": "l1"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if got["event"] != "lead.created" {
		t.Fatalf("payload = %v", got)
	}
}

// syncDispatcher runs Async callbacks inline so tests observe side effects.
func syncDispatcher(sms *SMSSender) *Dispatcher {
	d := NewDispatcher(sms, NewWorkflowTrigger(), logger.New("local"), metrics.New())
	d.run = func(fn func()) { fn() }
	return d
}

func TestDispatcher_NewLeadSendsSMS(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := NewSMSSender(config.SMSConfig{AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15550000001"})
	sms.baseURL = srv.URL

	d := syncDispatcher(sms)
	d.NewLead("+15550000002", leads.Lead{Name: "Dana Fox", Phone: "+15550009999", ServiceRequested: "plumbing"})

	if !strings.Contains(gotBody, "Dana+Fox") {
		t.Fatalf("sms body = %q", gotBody)
	}
}

func TestDispatcher_NewLeadSkipsWithoutPhone(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	sms := NewSMSSender(config.SMSConfig{AccountSID: "AC123", AuthToken: "tok", FromNumber: "+15550000001"})
	sms.baseURL = srv.URL

	d := syncDispatcher(sms)
	d.NewLead("", leads.Lead{Phone: "+15550009999"})

	if called {
		t.Fatal("no notification phone configured, gateway must not be called")
	}
}

func TestDispatcher_AsyncSwallowsFailures(t *testing.T) {
	d := syncDispatcher(nil)

	// Neither an error nor a panic may escape the dispatcher.
	d.Async("test", func(context.Context) error { return io.ErrUnexpectedEOF })
	d.Async("test", func(context.Context) error { panic("boom") })
}
