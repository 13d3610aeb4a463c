package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// ReminderSentOn reports whether a reminder for the movement was recorded on day (YYYY-MM-DD).
func (r Repo) ReminderSentOn(ctx context.Context, movementID, day string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM reminder_deliveries WHERE movement_id=? AND sent_on=?`, movementID, day).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordReminder marks a movement as reminded on day. Recording twice is a no-op.
func (r Repo) RecordReminder(ctx context.Context, tx *sql.Tx, movementID, day string, daysRemaining, recipients int, createdAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO reminder_deliveries(movement_id,sent_on,days_remaining,recipients,created_at) VALUES (?,?,?,?,?)`,
		movementID, day, daysRemaining, recipients, createdAt)
	if err != nil {
		return fmt.Errorf("record reminder %s: %w", movementID, err)
	}
	return nil
}

// RecordReminderRetry marks sink as still owing the movement's reminder for day.
func (r Repo) RecordReminderRetry(ctx context.Context, tx *sql.Tx, movementID, day, sink string, daysRemaining int, createdAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO reminder_retries(movement_id,sent_on,sink,days_remaining,created_at) VALUES (?,?,?,?,?)`,
		movementID, day, sink, daysRemaining, createdAt)
	if err != nil {
		return fmt.Errorf("record reminder retry %s/%s: %w", movementID, sink, err)
	}
	return nil
}

// ReminderRetrySinks lists the sinks that failed to deliver the movement's reminder on day.
func (r Repo) ReminderRetrySinks(ctx context.Context, movementID, day string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT sink FROM reminder_retries WHERE movement_id=? AND sent_on=? ORDER BY sink`, movementID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sinks []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, rows.Err()
}

// ClearReminderRetry drops a retry once sink has delivered.
func (r Repo) ClearReminderRetry(ctx context.Context, tx *sql.Tx, movementID, day, sink string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM reminder_retries WHERE movement_id=? AND sent_on=? AND sink=?`, movementID, day, sink)
	if err != nil {
		return fmt.Errorf("clear reminder retry %s/%s: %w", movementID, sink, err)
	}
	return nil
}
