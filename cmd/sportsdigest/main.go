// Sports Digest aggregates sports news and fixtures and sends a weekly
// personalised newsletter.
//
// Usage:
//
//	sportsdigest fetch [sports...]   # refresh news and fixtures
//	sportsdigest generate --send     # compile and send this week's edition
//	sportsdigest serve               # scheduler plus HTTP API
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/sports-digest/internal/api"
	"github.com/RobinCoderZhao/sports-digest/internal/config"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/analytics"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/jobs"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/scheduler"
	"github.com/RobinCoderZhao/sports-digest/pkg/logging"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "sportsdigest",
		Short:         "Sports news and fixtures weekly digest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("SPORTS_DIGEST_CONFIG", "config.yaml"), "config file")

	load := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
		return cfg, nil
	}

	rootCmd.AddCommand(
		migrateCmd(load),
		fetchCmd(load),
		trendingCmd(load),
		generateCmd(load),
		sendCmd(load),
		cleanupCmd(load),
		healthCmd(load),
		summaryCmd(load),
		analyticsCmd(load),
		subscribeCmd(load),
		unsubscribeCmd(load),
		subscribersCmd(load),
		serveCmd(load),
		tokenCmd(load),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type loader func() (config.Config, error)

// withApp wires the pipeline, runs fn and releases everything afterwards.
func withApp(load loader, fn func(ctx context.Context, a *app) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseSports maps CLI arguments to sports; "all" or nothing means every active sport.
func parseSports(args []string) []model.Sport {
	var out []model.Sport
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if part == "all" {
				return nil
			}
			out = append(out, model.Sport(part))
		}
	}
	return out
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the sport catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				fmt.Println("database ready")
				return nil
			})
		},
	}
}

func fetchCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [sports...]",
		Short: "Fetch news and fixtures for the given sports (default: all active)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				rep, err := a.service.Fetch(ctx, parseSports(args))
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
}

func trendingCmd(load loader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Fetch trending sports headlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				rep, err := a.service.FetchTrending(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum headlines (default from config)")
	return cmd
}

func generateCmd(load loader) *cobra.Command {
	var (
		refresh bool
		send    bool
		edition string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile the weekly newsletter",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jobs.GenerateOptions{Refresh: refresh, SendImmediately: send}
			if edition != "" {
				t, err := time.Parse(time.DateOnly, edition)
				if err != nil {
					return fmt.Errorf("invalid --edition %q, want YYYY-MM-DD", edition)
				}
				opts.Edition = t
			}
			return withApp(load, func(ctx context.Context, a *app) error {
				res, err := a.service.GenerateWeekly(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch fresh content first")
	cmd.Flags().BoolVar(&send, "send", false, "send to subscribers right away")
	cmd.Flags().StringVar(&edition, "edition", "", "edition date YYYY-MM-DD (default today)")
	return cmd
}

func sendCmd(load loader) *cobra.Command {
	var testAddress string
	cmd := &cobra.Command{
		Use:   "send <newsletter-id>",
		Short: "Send a compiled newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				res, err := a.service.Send(ctx, args[0], testAddress)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&testAddress, "test", "", "send only to this address, without tracking")
	return cmd
}

func cleanupCmd(load loader) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old articles and finished fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				res, err := a.service.Cleanup(ctx, days)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}

func healthCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database and every upstream API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				checks := a.service.Health(ctx)
				if err := printJSON(checks); err != nil {
					return err
				}
				if !checks["database"] {
					return errors.New("database unhealthy")
				}
				return nil
			})
		},
	}
}

func summaryCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show stored content and remaining API budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				sum, err := a.service.Summary(ctx)
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
}

func analyticsCmd(load loader) *cobra.Command {
	var (
		xlsxPath string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Recalculate newsletter analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				rows, err := a.service.CalculateAnalytics(ctx)
				if err != nil {
					return err
				}
				if xlsxPath == "" {
					return printJSON(rows)
				}
				all, err := a.store.ListAnalytics(ctx, limit)
				if err != nil {
					return err
				}
				if err := analytics.ExportXLSX(xlsxPath, all); err != nil {
					return err
				}
				fmt.Printf("wrote %d rows to %s\n", len(all), xlsxPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "export stored analytics to this spreadsheet")
	cmd.Flags().IntVar(&limit, "limit", 52, "newsletters to export")
	return cmd
}

func subscribeCmd(load loader) *cobra.Command {
	var (
		name   string
		sports []string
	)
	cmd := &cobra.Command{
		Use:   "subscribe <email>",
		Short: "Add a subscriber and send the welcome email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				sub, err := a.service.Subscribe(ctx, args[0], name, parseSports(sports))
				if err != nil {
					return err
				}
				return printJSON(sub)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&sports, "sports", nil, "sport preferences (default: all)")
	return cmd
}

func unsubscribeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <email>",
		Short: "Unsubscribe an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				if err := a.store.UnsubscribeEmail(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("%s unsubscribed\n", args[0])
				return nil
			})
		},
	}
}

func subscribersCmd(load loader) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "List subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(load, func(ctx context.Context, a *app) error {
				subs, err := a.store.ListSubscribers(ctx, model.SubscriberStatus(status))
				if err != nil {
					return err
				}
				for _, s := range subs {
					prefs := "all"
					if len(s.Preferences.Sports) > 0 {
						parts := make([]string, len(s.Preferences.Sports))
						for i, sp := range s.Preferences.Sports {
							parts[i] = string(sp)
						}
						prefs = strings.Join(parts, ",")
					}
					fmt.Printf("%-40s %-14s %s\n", s.Email, s.Status, prefs)
				}
				fmt.Printf("%d subscribers\n", len(subs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.SubscriberActive), "active, inactive or unsubscribed")
	return cmd
}

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := scheduler.NewRunner(0)
	sched := scheduler.NewScheduler(runner)
	if err := a.service.Register(sched); err != nil {
		return err
	}

	schedDone := make(chan struct{})
	if cfg.Jobs.Enabled {
		go func() {
			defer close(schedDone)
			sched.Start(ctx)
		}()
		for name, next := range sched.Next() {
			slog.Info("job scheduled", "job", name, "next", next)
		}
	} else {
		close(schedDone)
		slog.Info("scheduled jobs disabled, running API only")
	}

	server := api.NewServer(api.Deps{
		Service:   a.service,
		Content:   a.store,
		Tracker:   a.tracker,
		Jobs:      sched,
		JWTSecret: cfg.HTTP.JWTSecret,
		TokenTTL:  cfg.HTTP.TokenTTL,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting HTTP server", "addr", cfg.HTTP.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs still running at exit", "error", err)
	}
	<-schedDone
	return nil
}

func tokenCmd(load loader) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an admin bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.HTTP.TokenTTL
			}
			tok, err := api.GenerateToken(cfg.HTTP.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sportsdigest %s\n", version)
		},
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
