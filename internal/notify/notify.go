// Package notify delivers movement notifications to external channels. Delivery is best
// effort: callers persist first and treat a DeliveryError as a warning.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"movetrack/internal/domain"
)

type Event string

const (
	EventMovementCreated  Event = "movement_created"
	EventMovementUpdated  Event = "movement_updated"
	EventDeadlineReminder Event = "deadline_reminder"
)

// MovementSummary is the movement view carried by every notification.
type MovementSummary struct {
	ID            string   `json:"id"`
	EmployeeName  string   `json:"employee_name"`
	Type          string   `json:"type"`
	TypeLabel     string   `json:"type_label"`
	CreatedBy     string   `json:"created_by"`
	Deadline      string   `json:"deadline,omitempty"`
	SelectedTeams []string `json:"selected_teams"`
}

func Summarize(m domain.Movement) MovementSummary {
	s := MovementSummary{
		ID:            m.ID,
		EmployeeName:  m.EmployeeName,
		Type:          string(m.Type),
		TypeLabel:     m.Type.Label(),
		CreatedBy:     m.CreatedBy,
		SelectedTeams: append([]string{}, m.SelectedTeams...),
	}
	if m.Deadline != nil {
		s.Deadline = *m.Deadline
	}
	return s
}

// Notification is one movement-scoped notice and its addressees.
type Notification struct {
	Movement      MovementSummary    `json:"movement"`
	Recipients    []domain.Recipient `json:"recipients"`
	DaysRemaining int                `json:"days_remaining,omitempty"`
	UpdatedBy     string             `json:"updated_by,omitempty"`
}

// Message groups notifications of the same event for one delivery. Created and updated
// messages carry a single item; reminder messages carry the whole batch.
type Message struct {
	Event Event
	Items []Notification
	// Sinks, when set, restricts delivery to the named sinks.
	Sinks []string
}

func (m Message) recipientCount() int {
	n := 0
	for _, it := range m.Items {
		n += len(it.Recipients)
	}
	return n
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// DeliveryError collects per-sink failures of one dispatch.
type DeliveryError struct {
	Event  Event
	Failed []string
	Errs   []error
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("notification %s not fully delivered: %s", e.Event, strings.Join(parts, "; "))
}

func (e *DeliveryError) Unwrap() []error { return e.Errs }

// Dispatcher fans a message out to every sink under a shared timeout.
type Dispatcher struct {
	Sinks   []Sink
	Log     *zap.Logger
	Timeout time.Duration
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Log != nil {
		return d.Log
	}
	return zap.NewNop()
}

// Dispatch delivers msg to all sinks. Messages without recipients are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	if d == nil || msg.recipientCount() == 0 {
		return nil
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		errs   []error
		failed []string
	)
	for _, sink := range d.Sinks {
		if len(msg.Sinks) > 0 && !slices.Contains(msg.Sinks, sink.Name()) {
			continue
		}
		if err := sink.Deliver(ctx, msg); err != nil {
			d.logger().Warn("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("event", string(msg.Event)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			failed = append(failed, sink.Name())
		}
	}
	if len(errs) > 0 {
		return &DeliveryError{Event: msg.Event, Failed: failed, Errs: errs}
	}
	return nil
}

// FailedSinks returns the sinks named by a DeliveryError in err. ok is false when err is
// not a delivery error, in which case the caller cannot tell which sinks received it.
func FailedSinks(err error) (sinks []string, ok bool) {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return nil, false
	}
	return de.Failed, true
}

// IsDeliveryError reports whether err came from a failed notification.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
