package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"movetrack/internal/domain"
	"movetrack/internal/engine"
	"movetrack/internal/repo"
)

func movementCmd() *cobra.Command {
	mv := &cobra.Command{
		Use:   "movement",
		Short: "Manage movements",
		Long:  "A movement is one employee change that the selected teams must respond to.",
	}
	mv.AddCommand(movementCreateCmd())
	mv.AddCommand(movementListCmd())
	mv.AddCommand(movementShowCmd())
	mv.AddCommand(movementUpdateCmd())
	mv.AddCommand(movementDeleteCmd())
	mv.AddCommand(movementPreviewRosterCmd())
	return mv
}

// parseDetails reads the type-specific details given as JSON, e.g.
// '{"salary_change":{"current_salary":"3000","new_salary":"3450"}}'.
func parseDetails(raw, observation string) (domain.Details, error) {
	var d domain.Details
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return d, fmt.Errorf("invalid --details json: %w", err)
		}
	}
	if observation != "" {
		d.Observation = observation
	}
	return d, nil
}

func movementCreateCmd() *cobra.Command {
	var typ, employee, deadline, details, observation string
	var teams []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a movement and notify the selected teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseMovementType(typ)
			if err != nil {
				return err
			}
			d, err := parseDetails(details, observation)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				out, err := e.CreateMovement(ctx, engine.MovementCreateOptions{
					Type:          t,
					EmployeeName:  employee,
					SelectedTeams: teams,
					Details:       d,
					Deadline:      deadline,
					ActorID:       actorID,
				})
				if err != nil {
					return err
				}
				warnNotify(out.NotifyErr)
				return printMovement(e, out.Movement)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "dismissal, transfer, salary_change or promotion")
	cmd.Flags().StringVar(&employee, "employee", "", "employee name")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "team id to notify (repeatable)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&details, "details", "", "type-specific details as JSON")
	cmd.Flags().StringVar(&observation, "observation", "", "free-text observation")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func movementListCmd() *cobra.Command {
	var f repo.MovementFilters
	var status, typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.Status(status)
			f.Type = domain.MovementType(typ)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				items, err := e.ListMovements(ctx, f, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Employee", "Status", "Pending", "Deadline"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Type.Label(), m.EmployeeName, statusText(m.Status), strings.Join(m.PendingTeams(), ","), stringOrEmpty(m.Deadline)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&typ, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Team, "team", "", "only movements that include this team")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only movements that are not completed")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func movementShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a movement with every team response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				m, err := e.GetMovement(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printMovement(e, m)
			})
		},
	}
	return cmd
}

func movementUpdateCmd() *cobra.Command {
	var employee, deadline, details, observation string
	var teams []string
	var clearDeadline bool
	var version int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a movement; changing --team adds and drops team responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.MovementUpdateOptions{ID: args[0], ExpectedVersion: version}
			if cmd.Flags().Changed("employee") {
				opts.EmployeeName = &employee
			}
			if cmd.Flags().Changed("team") {
				opts.SelectedTeams = teams
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = &deadline
			}
			if clearDeadline {
				empty := ""
				opts.Deadline = &empty
			}
			if cmd.Flags().Changed("details") || cmd.Flags().Changed("observation") {
				d, err := parseDetails(details, observation)
				if err != nil {
					return err
				}
				opts.Details = &d
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				opts.ActorID = actorID
				out, err := e.UpdateMovement(ctx, opts)
				if err != nil {
					return err
				}
				warnNotify(out.NotifyErr)
				if out.Roster != nil && out.Roster.Destructive() && !viper.GetBool("json") {
					fmt.Fprintf(os.Stderr, "discarded completed responses from: %s\n", strings.Join(out.Roster.RemovedCompleted, ", "))
				}
				return printMovement(e, out.Movement)
			})
		},
	}
	cmd.Flags().StringVar(&employee, "employee", "", "employee name")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "full new team roster (repeatable)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "remove the deadline")
	cmd.Flags().StringVar(&details, "details", "", "type-specific details as JSON")
	cmd.Flags().StringVar(&observation, "observation", "", "free-text observation")
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail if the movement changed since this version")
	return cmd
}

func movementDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a movement and its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				if err := e.DeleteMovement(ctx, args[0], actorID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func movementPreviewRosterCmd() *cobra.Command {
	var teams []string
	cmd := &cobra.Command{
		Use:   "preview-roster <id>",
		Short: "Show which responses a roster edit would add or discard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				plan, err := e.PreviewRoster(ctx, args[0], teams, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"roster": plan, "destructive": plan.Destructive()})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Change", "Teams"})
				tw.AppendRow(table.Row{"keep", strings.Join(plan.Kept, ",")})
				tw.AppendRow(table.Row{"add", strings.Join(plan.Added, ",")})
				tw.AppendRow(table.Row{"remove", strings.Join(plan.Removed, ",")})
				tw.AppendRow(table.Row{"discard completed", strings.Join(plan.RemovedCompleted, ",")})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&teams, "team", nil, "proposed team roster (repeatable)")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func printMovement(e engine.Engine, m domain.Movement) error {
	if viper.GetBool("json") {
		return printJSON(m)
	}
	fmt.Printf("%s  %s  %s  [%s]  v%d\n", m.ID, m.Type.Label(), m.EmployeeName, statusText(m.Status), m.Version)
	if m.Deadline != nil {
		fmt.Printf("deadline: %s\n", *m.Deadline)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Team", "Status", "Submitted", "Comment", "Attachments"})
	for _, team := range m.SelectedTeams {
		r := m.Responses[team]
		tw.AppendRow(table.Row{e.Registry.TeamName(team), statusText(r.Status), stringOrEmpty(r.SubmittedDate), r.Comment, len(r.Attachments)})
	}
	tw.Render()
	return nil
}
