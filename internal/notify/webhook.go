package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"movetrack/internal/config"
	"movetrack/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink posts JSON payloads to the configured hooks.
type WebhookSink struct {
	Hooks  []config.WebhookConfig
	Client *http.Client
}

func NewWebhookSink(hooks []config.WebhookConfig) *WebhookSink {
	return &WebhookSink{Hooks: hooks, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

func (*WebhookSink) Name() string { return "webhook" }

type webhookPayload struct {
	Action     Event              `json:"action"`
	Movement   *MovementSummary   `json:"movement,omitempty"`
	Recipients []domain.Recipient `json:"recipients,omitempty"`
	UpdatedBy  string             `json:"updated_by,omitempty"`
	EmailType  string             `json:"email_type,omitempty"`
	Reminders  []reminderPayload  `json:"reminders,omitempty"`
}

type reminderPayload struct {
	Movement      MovementSummary    `json:"movement"`
	Recipients    []domain.Recipient `json:"recipients"`
	DaysRemaining int                `json:"days_remaining"`
	EmailType     string             `json:"email_type"`
}

func emailType(evt Event) string {
	switch evt {
	case EventMovementCreated:
		return "created"
	case EventMovementUpdated:
		return "updated"
	default:
		return "reminder"
	}
}

// payloads shapes a message into webhook bodies: reminders go out as one batch,
// the other events as one body per notification.
func payloads(msg Message) []webhookPayload {
	if msg.Event == EventDeadlineReminder {
		p := webhookPayload{Action: msg.Event}
		for _, it := range msg.Items {
			p.Reminders = append(p.Reminders, reminderPayload{
				Movement:      it.Movement,
				Recipients:    it.Recipients,
				DaysRemaining: it.DaysRemaining,
				EmailType:     emailType(msg.Event),
			})
		}
		return []webhookPayload{p}
	}
	out := make([]webhookPayload, 0, len(msg.Items))
	for _, it := range msg.Items {
		summary := it.Movement
		out = append(out, webhookPayload{
			Action:     msg.Event,
			Movement:   &summary,
			Recipients: it.Recipients,
			UpdatedBy:  it.UpdatedBy,
			EmailType:  emailType(msg.Event),
		})
	}
	return out
}

func (s *WebhookSink) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, hook := range s.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if !newEventFilter(hook.Events).match(string(msg.Event)) {
			continue
		}
		for _, p := range payloads(msg) {
			if err := s.post(ctx, hook, msg.Event, p); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", hook.URL, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookSink) post(ctx context.Context, hook config.WebhookConfig, evt Event, body webhookPayload) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Movetrack-Event", string(evt))
	req.Header.Set("X-Movetrack-Delivery", uuid.NewString())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Movetrack-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
