package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every notification to the structured log.
type LogSink struct {
	Log *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, msg Message) error {
	if s.Log == nil {
		return nil
	}
	for _, it := range msg.Items {
		emails := make([]string, 0, len(it.Recipients))
		for _, r := range it.Recipients {
			emails = append(emails, r.Email)
		}
		s.Log.Info("notification",
			zap.String("event", string(msg.Event)),
			zap.String("movement_id", it.Movement.ID),
			zap.String("employee", it.Movement.EmployeeName),
			zap.Strings("recipients", emails),
			zap.Int("days_remaining", it.DaysRemaining),
			zap.String("updated_by", it.UpdatedBy))
	}
	return nil
}
