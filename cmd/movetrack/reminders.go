package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
)

func remindersCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "reminders",
		Short: "Deadline reminders",
		Long:  "Open movements due in one to three days get one reminder a day for their pending teams.",
	}
	r.AddCommand(remindersRunCmd(true))
	r.AddCommand(remindersRunCmd(false))
	return r
}

func remindersRunCmd(dryRun bool) *cobra.Command {
	var today string
	use, short := "run", "Send deadline reminders now"
	if dryRun {
		use, short = "preview", "List the reminders a scan would send"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if today != "" {
				d, err := domain.ParseDate(today)
				if err != nil {
					return fmt.Errorf("--today must be YYYY-MM-DD")
				}
				day = d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				report, err := e.RunReminders(ctx, engine.ReminderOptions{Today: day, DryRun: dryRun, ActorID: actorID})
				if err != nil {
					return err
				}
				warnNotify(report.NotifyErr)
				return printReminderReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "scan as of this date (YYYY-MM-DD)")
	return cmd
}

func printReminderReport(r engine.ReminderReport) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Movement", "Employee", "Days left", "Pending teams", "Recipients"})
	for _, g := range r.Groups {
		emails := make([]string, 0, len(g.Recipients))
		for _, rc := range g.Recipients {
			emails = append(emails, rc.Email)
		}
		tw.AppendRow(table.Row{g.Movement.ID, g.Movement.EmployeeName, g.DaysRemaining, strings.Join(g.PendingTeams, ","), strings.Join(emails, ",")})
	}
	tw.Render()
	verb := "sent"
	if r.DryRun {
		verb = "would send"
	}
	fmt.Printf("%s: checked %d open movements, %s %d reminders to %d recipients (%d already sent today, %d retried)\n",
		r.Day, r.MovementsChecked, verb, len(r.Groups), r.Recipients, r.AlreadySent, r.Retried)
	return nil
}
