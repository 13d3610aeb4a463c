package main

import (
	"context"
	"errors"
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

func userCmd() *cobra.Command {
	u := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Local commands run without --as act as the system; with --as the user must be an admin.",
	}
	u.AddCommand(userRegisterCmd())
	u.AddCommand(userListCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var opts engine.UserRegisterOptions
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Role = domain.Role(role)
			if opts.Password == "" {
				opts.Password = os.Getenv("MOVETRACK_NEW_PASSWORD")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				opts.ActorID = actorID
				u, err := e.RegisterUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "login email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (or MOVETRACK_NEW_PASSWORD)")
	cmd.Flags().StringSliceVar(&opts.Teams, "team", nil, "team membership (repeatable)")
	cmd.Flags().StringVar(&role, "role", "team_member", "admin or team_member")
	cmd.Flags().BoolVar(&opts.CanManageDismissals, "can-manage-dismissals", false, "admin may create and edit dismissals")
	cmd.Flags().BoolVar(&opts.CanManageTransfersEtc, "can-manage-transfers", false, "admin may create and edit transfers, salary changes and promotions")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				users, err := e.ListUsers(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Teams"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, strings.Join(u.Teams, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	k.AddCommand(apikeyCreateCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				owner, _, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no user with email %s", email)
					}
					return err
				}
				plain, key, err := e.CreateAPIKey(ctx, owner.ID, name, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "api_key": key})
				}
				fmt.Printf("api key %s for %s:\n%s\n", key.ID, owner.Email, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "user", "", "email of the key owner")
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
