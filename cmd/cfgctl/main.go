package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"cfgadmin/internal/app"
	"cfgadmin/internal/auth"
	"cfgadmin/internal/config"
	"cfgadmin/internal/db"
	"cfgadmin/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "cfgctl",
	Short: "Configuration admin CLI",
	Long: `cfgctl reads and writes the configuration entities of a CI server's admin API.
Core concepts:
- Families: users, roles, SCMs, elastic profiles, package repositories and pipelines. Each lives at its own endpoint and API version.
- ETags: every read records the entity's ETag in the local cache; updates send it back so a concurrent edit is reported as a conflict instead of being overwritten.
- Apply: 'cfgctl apply' creates a document when no ETag is cached for it and updates it otherwise. Run 'cfgctl get' first to update an entity made elsewhere.
- Validation: 'cfgctl validate' checks a document locally with the same rules the server applies; server-side errors come back attached to the entity's fields.
- Roles: 'cfgctl roles assign' computes the minimal add/remove operations for the selected users.
- Journal: every write is recorded locally; read it with 'cfgctl log tail'.
- Dev server: 'cfgctl serve --dev' runs an in-memory admin API for local experiments.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CFGADMIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("server", "", "server URL (overrides config)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (overrides config)")
	for _, name := range []string{"workspace", "json", "verbose", "server", "token"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(pluginsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage cfgadmin.yml",
		Long:  "cfgadmin.yml names the server, its credentials, per-family API version overrides, where ETags are cached, and the dev server settings.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var serverURL string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cfgadmin.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			state, err := db.EnsureWorkspace(workspace)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(serverURL)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			fmt.Println("local state in", state)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "url", "", "server URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate cfgadmin.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens for the dev server"}
	var login string
	var admin bool
	var roles []string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token signed with dev.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := devSecret(cfg)
			if secret == "" {
				return fmt.Errorf("dev.jwt_secret or CFGADMIN_JWT_SECRET is required")
			}
			token, err := auth.Issue(secret, auth.Principal{Login: login, Roles: roles, Admin: admin}, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	issue.Flags().StringVar(&login, "login", "admin", "subject login name")
	issue.Flags().BoolVar(&admin, "admin", true, "admin claim")
	issue.Flags().StringSliceVar(&roles, "roles", nil, "role claims")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime")
	tok.AddCommand(issue)
	return tok
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Local write journal",
		Long:  "Every create, update, delete and bulk operation made through cfgctl, with the status and ETag the server answered.",
	}
	log.AddCommand(logTailCmd())
	log.AddCommand(logETagsCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.JournalFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r *repo.Repo) error {
				entries, err := r.ListJournal(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"ID", "Time", "Method", "Family", "Entity", "Status", "ETag"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Method, e.Family, e.EntityID, e.Status, e.ETag})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.Family, "family", "", "family filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity filter")
	cmd.Flags().StringVar(&f.Method, "method", "", "HTTP method filter")
	return cmd
}

func logETagsCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "etags",
		Short: "Show cached ETags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r *repo.Repo) error {
				tokens, err := r.ListTokens(ctx, family)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tokens)
				}
				tw := newTable(table.Row{"Family", "Entity", "ETag", "Updated"})
				for _, t := range tokens {
					tw.AppendRow(table.Row{t.Family, t.EntityID, t.ETag, t.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "family filter")
	return cmd
}

// --- helpers ---

func newLogger() *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if viper.GetBool("verbose") {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		log, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// loadConfig reads cfgadmin.yml when present and applies flag and environment
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("server"); v != "" {
		cfg.Server.URL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Server.Token = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func devSecret(cfg *config.Config) string {
	if v := viper.GetString("jwt-secret"); v != "" {
		return v
	}
	return cfg.Dev.JWTSecret
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()
	a, err := app.Open(app.Options{Workspace: viper.GetString("workspace"), Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withRepo(ctx context.Context, fn func(context.Context, *repo.Repo) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if a.Repo == nil {
			return fmt.Errorf("the memory cache backend keeps no journal")
		}
		return fn(ctx, a.Repo)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
