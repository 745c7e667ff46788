package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"petscreen/internal/config"
	"petscreen/internal/db"
	"petscreen/internal/domain"
	"petscreen/internal/migrate"
	"petscreen/internal/repo"
	"petscreen/internal/screening"
	"petscreen/internal/server"
	"petscreen/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "pets",
	Short: "Pre-entry TB screening CLI",
	Long: `pets manages UK pre-entry tuberculosis screening applications.
An application walks through fixed steps: visa applicant details, UK travel
information, medical history and TB symptoms, chest X-ray, sputum decision,
sputum collection and results, and the TB certificate outcome. The progress
tracker ('pets tracker') shows which step is next, and 'pets log tail' shows
the change history. 'pets serve' exposes the same workflow over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
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
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PETSCREEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(sputumCmd())
	rootCmd.AddCommand(trackerCmd())
	rootCmd.AddCommand(consentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage clinic config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var clinicID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default petscreen.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(clinicID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&clinicID, "clinic-id", "clinic-local", "clinic identifier")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func applicationCmd() *cobra.Command {
	app := &cobra.Command{Use: "application", Short: "Manage screening applications"}
	app.AddCommand(applicationCreateCmd())
	app.AddCommand(applicationShowCmd())
	app.AddCommand(applicationListCmd())
	app.AddCommand(applicationDeleteCmd())
	return app
}

func applicationCreateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new screening application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				app, err := e.CreateApplication(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "application id (generated when omitted)")
	return cmd
}

func applicationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an application with all step data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				app, err := e.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func applicationListCmd() *cobra.Command {
	var clinicID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.ListApplications(ctx, clinicID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Clinic", "Created", "Updated"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.ID, row.ClinicID, row.CreatedAt, row.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clinicID, "clinic", "", "clinic filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func applicationDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an application and its step data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteApplication(ctx, args[0])
			})
		},
	}
	return cmd
}

func sputumCmd() *cobra.Command {
	sp := &cobra.Command{Use: "sputum", Short: "Sputum collection and results"}
	sp.AddCommand(sputumShowCmd())
	sp.AddCommand(sputumCollectCmd())
	sp.AddCommand(sputumSubmitCmd())
	return sp
}

func sputumCollectCmd() *cobra.Command {
	var sampleNum int
	var dateStr, method string
	var toResults bool
	cmd := &cobra.Command{
		Use:   "collect <application-id>",
		Short: "Record one sample's collection date and method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sampleNum < 1 || sampleNum > 3 {
				return fmt.Errorf("--sample must be 1, 2 or 3")
			}
			date, err := domain.ParseWire(dateStr)
			if err != nil {
				return err
			}
			in := screening.CollectionInput{}
			in.Samples[sampleNum-1] = screening.SampleCollectionInput{
				DateOfSample:     date,
				CollectionMethod: domain.CollectionMethod(method),
			}
			intent := screening.IntentSaveProgress
			if toResults {
				intent = screening.IntentContinueToResults
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				next, err := e.SaveCollection(ctx, args[0], viper.GetString("actor-id"), intent, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"next": next})
			})
		},
	}
	cmd.Flags().IntVar(&sampleNum, "sample", 1, "sample number (1-3)")
	cmd.Flags().StringVar(&dateStr, "date", "", "collection date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&method, "method", "", fmt.Sprintf("collection method, one of %v", domain.CollectionMethods))
	cmd.Flags().BoolVar(&toResults, "continue", false, "require all three samples and continue to results")
	return cmd
}

func sputumShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <application-id>",
		Short: "Show the sputum aggregate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				app, err := e.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(app.Sputum)
			})
		},
	}
	return cmd
}

func sputumSubmitCmd() *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "submit <application-id>",
		Short: "Submit everything staged since the last submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expected *int64
			if cmd.Flags().Changed("version") {
				expected = &version
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				out, err := e.Submit(ctx, args[0], viper.GetString("actor-id"), expected)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "expected concurrency token")
	return cmd
}

func trackerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker <application-id>",
		Short: "Show the progress tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e screening.Engine) error {
				app, err := e.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				rows := tracker.Derive(app)
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Status", "Label"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.Description, row.Status, row.Label})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func consentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "consent", Short: "Cookie consent for the current actor"}
	cmd.AddCommand(consentSetCmd("accept", domain.ConsentAccepted))
	cmd.AddCommand(consentSetCmd("reject", domain.ConsentRejected))
	cmd.AddCommand(consentShowCmd())
	return cmd
}

func consentSetCmd(use string, decision domain.CookieConsent) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Record a %sed consent decision", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				return r.UpsertConsent(ctx, viper.GetString("actor-id"), decision, now)
			})
		},
	}
}

func consentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored consent decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				decision, err := r.GetConsent(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"actor_id": viper.GetString("actor-id"),
					"decision": string(decision),
				})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: application steps saved, sputum submissions, and more.",
	}
	log.AddCommand(logTailCmd())
	log.AddCommand(logFollowCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, applicationID, step string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, applicationID, evtType, step)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&applicationID, "application", "", "application filter")
	cmd.Flags().StringVar(&step, "step", "", "step filter")
	return cmd
}

func logFollowCmd() *cobra.Command {
	var applicationID string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Stream events appended after the command starts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cursor, err := r.LatestEventID(ctx, applicationID)
				if err != nil {
					return err
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					batch, err := r.EventsAfter(ctx, 100, cursor, applicationID)
					if err != nil {
						return err
					}
					for _, evt := range batch {
						if err := printJSON(evt); err != nil {
							return err
						}
						cursor = evt.ID
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&applicationID, "application", "", "application filter")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "api-key", Short: "Manage API keys for the HTTP API"}
	ak.AddCommand(apiKeyCreateCmd())
	ak.AddCommand(apiKeyListCmd())
	ak.AddCommand(apiKeyDeleteCmd())
	return ak
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":   key.ID,
					"name": key.Name,
					"key":  secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the current actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Actor", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, key.ActorID, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := screening.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("PETSCREEN_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PETSCREEN_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving screening API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("clinic-local")
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, screening.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return fn(ctx, screening.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
