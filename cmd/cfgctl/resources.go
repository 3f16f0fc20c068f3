package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cfgadmin/internal/app"
	"cfgadmin/internal/domain"
	"cfgadmin/internal/engine"
	"cfgadmin/internal/selection"
	"cfgadmin/internal/wire"
	adminsdk "cfgadmin/sdk/go"
)

// familyArg accepts "elastic-profile" for "elastic profile".
func familyArg(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", " ")
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <family>",
		Short: "List a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.List(ctx, familyArg(args[0]))
				if items == nil && err != nil {
					return err
				}
				if batch, ok := wire.AsBatchError(err); ok {
					fmt.Fprintf(os.Stderr, "warning: %v\n", batch)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Valid"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Identity(), it.IsValid()})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <family> <id>",
		Short: "Show one entity and cache its ETag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.Get(ctx, familyArg(args[0]), args[1])
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <family> <id>...",
		Short: "Delete entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Remove(ctx, familyArg(args[0]), args[1:]...); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deleted": args[1:]})
			})
		},
	}
}

func applyCmd() *cobra.Command {
	var file, family string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update entities from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var results []engine.Result
				var failed int
				for _, doc := range docs {
					res, err := a.Engine.ApplyDocument(ctx, familyArg(family), doc)
					results = append(results, res)
					if err != nil {
						failed++
						reportApplyError(res, err)
					}
				}
				if viper.GetBool("json") {
					if err := printJSON(results); err != nil {
						return err
					}
				} else {
					tw := newTable(table.Row{"Family", "ID", "Action", "ETag", "Errors"})
					for _, r := range results {
						tw.AppendRow(table.Row{r.Family, r.ID, r.Action, r.ETag, formatErrors(r.Errors)})
					}
					tw.Render()
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(docs))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document file, - for stdin")
	cmd.Flags().StringVar(&family, "family", "", "family of the documents")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}

func reportApplyError(res engine.Result, err error) {
	switch {
	case adminsdk.IsConflict(err):
		fmt.Fprintf(os.Stderr, "%s %q was modified by someone else; run 'cfgctl get' and reapply your change\n", res.Family, res.ID)
	case errors.Is(err, adminsdk.ErrMissingETag):
		fmt.Fprintf(os.Stderr, "%s %q has no cached ETag; run 'cfgctl get' first\n", res.Family, res.ID)
	default:
		fmt.Fprintf(os.Stderr, "%s %q: %v\n", res.Family, res.ID, err)
	}
}

func validateCmd() *cobra.Command {
	var file, family string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate documents locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(file)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := engine.New(adminsdk.New(cfg.Server.URL), engine.Options{Versions: cfg.Version})
			var reports []engine.Report
			invalid := 0
			for i, doc := range docs {
				rep, err := e.ValidateDocument(familyArg(family), doc)
				if err != nil {
					return fmt.Errorf("document %d: %w", i, err)
				}
				if !rep.Valid {
					invalid++
				}
				reports = append(reports, rep)
			}
			if viper.GetBool("json") {
				if err := printJSON(reports); err != nil {
					return err
				}
			} else {
				tw := newTable(table.Row{"Family", "ID", "Valid", "Errors"})
				for _, r := range reports {
					tw.AppendRow(table.Row{r.Family, r.ID, r.Valid, formatErrors(r.Errors)})
				}
				tw.Render()
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d documents are invalid", invalid, len(docs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document file, - for stdin")
	cmd.Flags().StringVar(&family, "family", "", "family of the documents")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}

func usersCmd() *cobra.Command {
	users := &cobra.Command{Use: "users", Short: "Find, enable, disable and delete users"}
	users.AddCommand(usersFilterCmd())
	users.AddCommand(usersStateCmd("enable", true))
	users.AddCommand(usersStateCmd("disable", false))
	users.AddCommand(&cobra.Command{
		Use:   "delete <login>...",
		Short: "Delete users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteUsers(ctx, args...); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deleted": args})
			})
		},
	})
	return users
}

func usersFilterCmd() *cobra.Command {
	var f domain.UserFilter
	var admin, enabled bool
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List users matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("admin") {
				f.Admin = &admin
			}
			if cmd.Flags().Changed("enabled") {
				f.Enabled = &enabled
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.FilterUsers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"Login", "Name", "Email", "Enabled", "Admin", "Roles"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.LoginName, u.DisplayName, u.Email, u.Enabled, u.IsAdmin, strings.Join(u.RoleNames(""), ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "only admins (or only non-admins with --admin=false)")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "only enabled (or only disabled with --enabled=false)")
	cmd.Flags().StringVar(&f.Role, "role", "", "users holding this role")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search login, name and email")
	return cmd
}

func usersStateCmd(verb string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <login>...",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				msg, err := a.Engine.SetUsersEnabled(ctx, enable, args...)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"message": msg})
			})
		},
	}
}

func rolesCmd() *cobra.Command {
	roles := &cobra.Command{Use: "roles", Short: "Inspect and assign roles"}
	roles.AddCommand(rolesShowCmd())
	roles.AddCommand(rolesAssignCmd())
	return roles
}

func rolesShowCmd() *cobra.Command {
	var logins []string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show which roles the selected users hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sel, err := a.Engine.RoleSelection(ctx, logins)
				if err != nil {
					return err
				}
				return printSelection(sel)
			})
		},
	}
	cmd.Flags().StringSliceVar(&logins, "users", nil, "selected users")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}

func rolesAssignCmd() *cobra.Command {
	var logins, add, remove []string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Add or remove roles for the selected users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sel, err := a.Engine.RoleSelection(ctx, logins)
				if err != nil {
					return err
				}
				for _, r := range add {
					if err := sel.Set(r, selection.Checked); err != nil {
						return err
					}
				}
				for _, r := range remove {
					if err := sel.Clear(r); err != nil {
						return err
					}
				}
				if dryRun {
					return printJSON(domain.NewRoleUpdate(sel.Diff()))
				}
				update, err := a.Engine.ApplyRoles(ctx, sel)
				if err != nil {
					return err
				}
				if update.IsEmpty() {
					fmt.Println("nothing to change")
					return nil
				}
				return printJSONOrTable(update)
			})
		},
	}
	cmd.Flags().StringSliceVar(&logins, "users", nil, "selected users")
	cmd.Flags().StringSliceVar(&add, "add", nil, "roles every selected user gets")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "roles no selected user keeps")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the update without sending it")
	_ = cmd.MarkFlagRequired("users")
	return cmd
}

func printSelection(sel *selection.Selection) error {
	if viper.GetBool("json") {
		states := map[string]string{}
		for _, g := range sel.Groups() {
			states[g] = sel.State(g).String()
		}
		return printJSON(map[string]any{"users": sel.Members(), "roles": states})
	}
	tw := newTable(table.Row{"Role", "State"})
	for _, g := range sel.Groups() {
		tw.AppendRow(table.Row{g, sel.State(g)})
	}
	tw.Render()
	return nil
}

func pluginsCmd() *cobra.Command {
	plugins := &cobra.Command{Use: "plugins", Short: "Plugin-provided variants"}
	plugins.AddCommand(&cobra.Command{
		Use:   "load",
		Short: "Read plugin infos and list the variants they register",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ids, err := a.Engine.LoadPlugins(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"registered": ids,
					"tasks":      domain.TaskRegistry.Kinds(),
					"scms":       domain.SCMRegistry.Kinds(),
					"profiles":   domain.ProfileRegistry.Kinds(),
				})
			})
		},
	})
	return plugins
}

// readDocuments reads one document or an array of documents, as JSON or as
// YAML when the file name says so.
func readDocuments(path string) ([]json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return docs, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("parse %s: not a JSON document", path)
	}
	return []json.RawMessage{data}, nil
}

func formatErrors(errs map[string][]string) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for field, msgs := range errs {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return strings.Join(parts, "\n")
}
