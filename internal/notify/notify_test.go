package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

type stubSink struct {
	name string
	err  error
	got  []Message
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Deliver(_ context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func sampleMessage(evt Event) Message {
	return Message{Event: evt, Items: []Notification{{
		Movement: MovementSummary{ID: "m1", EmployeeName: "João Silva", Type: "dismissal", TypeLabel: "Dismissal", CreatedBy: "Admin", Deadline: "2025-11-13"},
		Recipients: []domain.Recipient{
			{Email: "ana@example.com", Name: "Ana", TeamID: "it", TeamName: "IT"},
			{Email: "bia@example.com", Name: "Bia", TeamID: "finance", TeamName: "Finance"},
		},
		DaysRemaining: 3,
		UpdatedBy:     "Carla",
	}}}
}

func TestDispatcherJoinsSinkFailures(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("boom")}
	d := &Dispatcher{Sinks: []Sink{ok, bad}}
	err := d.Dispatch(context.Background(), sampleMessage(EventMovementCreated))
	var de *DeliveryError
	if !errors.As(err, &de) || len(de.Errs) != 1 || de.Event != EventMovementCreated {
		t.Fatalf("expected DeliveryError with one failure, got %v", err)
	}
	if !IsDeliveryError(err) || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if len(ok.got) != 1 {
		t.Fatalf("healthy sink should still receive the message")
	}
	if failed, isDelivery := FailedSinks(err); !isDelivery || len(failed) != 1 || failed[0] != "bad" {
		t.Fatalf("failed sinks = %v %v", failed, isDelivery)
	}
	if _, isDelivery := FailedSinks(errors.New("timeout")); isDelivery {
		t.Fatalf("plain errors carry no sink list")
	}
}

func TestDispatcherRestrictsToNamedSinks(t *testing.T) {
	logSink := &stubSink{name: "log"}
	hook := &stubSink{name: "webhook"}
	d := &Dispatcher{Sinks: []Sink{logSink, hook}}
	msg := sampleMessage(EventDeadlineReminder)
	msg.Sinks = []string{"webhook"}
	if err := d.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(logSink.got) != 0 || len(hook.got) != 1 {
		t.Fatalf("only the named sink should deliver: log=%d webhook=%d", len(logSink.got), len(hook.got))
	}
}

func TestDispatcherSkipsEmptyRecipients(t *testing.T) {
	s := &stubSink{name: "s"}
	d := &Dispatcher{Sinks: []Sink{s}}
	if err := d.Dispatch(context.Background(), Message{Event: EventMovementCreated, Items: []Notification{{}}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(s.got) != 0 {
		t.Fatalf("message without recipients should not be delivered")
	}
	var nilDispatcher *Dispatcher
	if err := nilDispatcher.Dispatch(context.Background(), sampleMessage(EventMovementCreated)); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}

func TestWebhookSinkPayloads(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
		heads  []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		bodies = append(bodies, body)
		heads = append(heads, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	disabled := false
	sink := NewWebhookSink([]config.WebhookConfig{
		{URL: srv.URL, Secret: "s3cret"},
		{URL: srv.URL, Events: []string{"deadline_reminder"}},
		{URL: srv.URL, Enabled: &disabled},
	})

	if err := sink.Deliver(context.Background(), sampleMessage(EventMovementUpdated)); err != nil {
		t.Fatalf("deliver updated: %v", err)
	}
	if len(bodies) != 1 {
		t.Fatalf("expected one post for filtered hooks, got %d", len(bodies))
	}
	if bodies[0]["action"] != "movement_updated" || bodies[0]["updated_by"] != "Carla" || bodies[0]["email_type"] != "updated" {
		t.Fatalf("unexpected updated payload %v", bodies[0])
	}
	if heads[0].Get("X-Movetrack-Secret") != "s3cret" || heads[0].Get("X-Movetrack-Event") != "movement_updated" {
		t.Fatalf("unexpected headers %v", heads[0])
	}

	if err := sink.Deliver(context.Background(), sampleMessage(EventDeadlineReminder)); err != nil {
		t.Fatalf("deliver reminder: %v", err)
	}
	if len(bodies) != 3 {
		t.Fatalf("reminder should reach both enabled hooks, got %d posts", len(bodies))
	}
	reminders, ok := bodies[2]["reminders"].([]any)
	if !ok || len(reminders) != 1 {
		t.Fatalf("expected batched reminders, got %v", bodies[2])
	}
	first := reminders[0].(map[string]any)
	if first["days_remaining"].(float64) != 3 || first["email_type"] != "reminder" {
		t.Fatalf("unexpected reminder entry %v", first)
	}
}

func TestWebhookSinkReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	err := NewWebhookSink([]config.WebhookConfig{{URL: srv.URL}}).Deliver(context.Background(), sampleMessage(EventMovementCreated))
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestMailSinkSendsOnePerRecipient(t *testing.T) {
	type sent struct {
		addr string
		to   []string
		body string
	}
	var got []sent
	sink := &MailSink{
		Config: config.MailConfig{Enabled: true, Host: "smtp.example.com", Port: 2525, From: "hr@example.com", SiteName: "HR"},
		Send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			got = append(got, sent{addr: addr, to: to, body: string(msg)})
			return nil
		},
	}
	if err := sink.Deliver(context.Background(), sampleMessage(EventDeadlineReminder)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(got))
	}
	if got[0].addr != "smtp.example.com:2525" || got[0].to[0] != "ana@example.com" {
		t.Fatalf("unexpected envelope %+v", got[0])
	}
	if !strings.Contains(got[0].body, "Subject: [HR] Reminder: João Silva due in 3 days") {
		t.Fatalf("subject missing from %q", got[0].body)
	}
	if !strings.Contains(got[0].body, "text/html") || !strings.Contains(got[0].body, "Your team (IT)") {
		t.Fatalf("body missing parts: %q", got[0].body)
	}
}

func TestBuildEmailEscapesHTML(t *testing.T) {
	n := sampleMessage(EventMovementCreated).Items[0]
	n.Movement.EmployeeName = "<b>X</b>"
	email := BuildEmail(EventMovementCreated, n, n.Recipients[0], "", "")
	if strings.Contains(email.HTMLBody, "<b>X</b>") {
		t.Fatalf("employee name not escaped in html body")
	}
	if !strings.HasPrefix(email.Subject, "[Movetrack] New dismissal") {
		t.Fatalf("unexpected subject %q", email.Subject)
	}
}
