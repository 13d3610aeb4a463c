package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"movetrack/internal/app"
	"movetrack/internal/db"
	"movetrack/internal/domain"
	"movetrack/internal/engine"
	"movetrack/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "movetrack",
	Short: "Movetrack CLI",
	Long: `Movetrack tracks personnel movements (dismissals, transfers, salary changes, promotions)
through the teams that must act on them.
- Movement: one employee change, with the teams selected to respond and an optional deadline.
- Response: a team's comment, checklist and attachments; the movement completes when every
  selected team has answered.
- Reminders: teams still pending one to three days before the deadline get one email a day.
- Event log: every change is recorded, view it with 'movetrack log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MOVETRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory holding the database")
	flags.String("config", "", "config file (default <workspace>/movetrack.yml, else the built-in catalog)")
	flags.Bool("json", false, "output JSON")
	flags.String("as", "", "email of the user the command acts as")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")
	for _, name := range []string{"workspace", "config", "json", "as", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(movementCmd())
	rootCmd.AddCommand(responseCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

// --- helpers ---

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	var cfg zap.Config
	switch viper.GetString("log-format") {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("--log-format must be console or json")
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openApp(ctx context.Context) (*app.App, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Log:        log,
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Log.Sync()
	return fn(ctx, a)
}

// withEngine runs fn with the id of the --as user, or "" when --as is not set.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		actorID, err := resolveActor(ctx, a.Engine.Repo, viper.GetString("as"))
		if err != nil {
			return err
		}
		return fn(ctx, a.Engine, actorID)
	})
}

// withActor is withEngine for commands that must run as a user.
func withActor(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	if strings.TrimSpace(viper.GetString("as")) == "" {
		return fmt.Errorf("--as <email> (or MOVETRACK_AS) is required")
	}
	return withEngine(ctx, fn)
}

func resolveActor(ctx context.Context, r repo.Repo, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	u, _, err := r.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("no user with email %s", email)
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func statusText(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return color.GreenString(string(s))
	case domain.StatusInProgress:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

// warnNotify reports a notification failure on a mutation that was saved.
func warnNotify(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, color.YellowString("warning:"), "saved, but some people may not have been notified:", err)
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
