package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planboard/internal/app"
	"planboard/internal/config"
	"planboard/internal/db"
	"planboard/internal/engine"
	"planboard/internal/repo"
	"planboard/internal/server"
)

const (
	envActor     = "PLANBOARD_ACTOR"
	envOrg       = "PLANBOARD_ORG"
	envJWTSecret = "PLANBOARD_JWT_SECRET"
)

var rootCmd = &cobra.Command{
	Use:   "pb",
	Short: "Planboard CLI",
	Long: `Planboard manages organizations, teams, projects, sprints and tasks.
- Workspace: a directory holding planboard.yml, an optional .env and the .planboard store.
- Actor: every command runs as the user named by --as (id or email), or PLANBOARD_ACTOR.
  The very first user can be created without an actor and becomes ADMIN.
- Org: commands scoped to an organization use --org, or PLANBOARD_ORG (see pb org use).
- Sprints never overlap inside a project; tasks nest into subtasks within one project.
- Deletes are soft and can be restored; pb task delete --permanent is ADMIN only.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig loads the workspace .env first so that real environment variables still
// win, then lets viper read PLANBOARD_* variables.
func initConfig() {
	workspace := viper.GetString("workspace")
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	viper.SetEnvPrefix("PLANBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "acting user id or email (env PLANBOARD_ACTOR)")
	rootCmd.PersistentFlags().String("org", "", "organization id (env PLANBOARD_ORG)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create planboard.yml, the store and a JWT secret in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			if viper.GetString("jwt_secret") == "" {
				secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				if err := setEnvValue(workspace, envJWTSecret, secret); err != nil {
					return err
				}
				fmt.Printf("Generated %s in %s\n", envJWTSecret, filepath.Join(workspace, ".env"))
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Store ready at %s\n", db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing planboard.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if c.Auth.JWTSecret != "" {
				c.Auth.JWTSecret = "********"
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate planboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens for the HTTP API"}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				if actor.ID == "" {
					return fmt.Errorf("--as or %s is required", envActor)
				}
				if ttl == 0 {
					ttl = a.Config.TokenTTL()
				}
				token, err := server.IssueToken(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer, actor.ID, ttl)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"token": token, "expiresIn": ttl.String(), "userId": actor.ID})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	tok.AddCommand(issue)
	return tok
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("addr") {
				addr = a.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{JWTSecret: a.Config.Auth.JWTSecret, Issuer: a.Config.Auth.Issuer}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("%s (or auth.jwt_secret) is required for bearer auth; run pb init", envJWTSecret)
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Logger: a.Logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Logger.WithField("addr", addr).Info("serving planboard API")
			fmt.Printf("Serving Planboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path (default server.base_path)")
	return cmd
}

func activityCmd() *cobra.Command {
	var entityType, entityID string
	var limit int
	var before int64
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the organization activity log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor engine.Actor) error {
				orgID, err := requireOrg()
				if err != nil {
					return err
				}
				items, err := a.Engine.ListActivity(ctx, actor, repo.ActivityFilters{
					OrgID: orgID, EntityType: entityType, EntityID: entityID, BeforeID: before, Limit: limit,
				})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, l := range items {
					rows = append(rows, table.Row{l.ID, l.CreatedAt.Format(time.RFC3339), l.ActorID, l.Action, l.Description})
				}
				return printJSONOrTable(items, table.Row{"#", "At", "Actor", "Action", "Description"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().Int64Var(&before, "before", 0, "only entries older than this id")
	return cmd
}

// --- helpers ---

// loadConfig reads planboard.yml and applies PLANBOARD_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if s := viper.GetString("jwt_secret"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, cfg.Validate()
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Config: cfg})
}

func withEngine(ctx context.Context, fn func(context.Context, *app.App, engine.Actor) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	actor, err := resolveActor(ctx, a.Engine)
	if err != nil {
		return err
	}
	return fn(ctx, a, actor)
}

// resolveActor maps --as to a stored user. An empty value yields the anonymous actor.
func resolveActor(ctx context.Context, e engine.Engine) (engine.Actor, error) {
	ref := strings.TrimSpace(viper.GetString("actor"))
	if ref == "" {
		return engine.Actor{}, nil
	}
	lookup := e.GetUser
	if strings.Contains(ref, "@") {
		lookup = e.GetUserByEmail
	}
	u, err := lookup(ctx, ref)
	if err != nil {
		return engine.Actor{}, fmt.Errorf("acting user %s: %w", ref, err)
	}
	return engine.Actor{ID: u.ID, Role: u.Role}, nil
}

func requireOrg() (string, error) {
	orgID := strings.TrimSpace(viper.GetString("org"))
	if orgID == "" {
		return "", fmt.Errorf("--org or %s is required (see pb org use)", envOrg)
	}
	return orgID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable prints v as JSON with --json, otherwise the rows as a table.
func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	renderTable(header, rows)
	return nil
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// setEnvValue updates one key of the workspace .env, keeping the others.
func setEnvValue(workspace, key, value string) error {
	path := filepath.Join(workspace, ".env")
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}
	values[key] = value
	return godotenv.Write(values, path)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalInt(cmd *cobra.Command, flag string, value int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalFloat(cmd *cobra.Command, flag string, value float64) *float64 {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

// parseDate accepts RFC 3339 or a plain date, read as midnight UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func optionalDate(cmd *cobra.Command, flag, value string) (*time.Time, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
