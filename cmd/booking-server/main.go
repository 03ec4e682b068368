package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/booking/internal/config"
	"github.com/ehr/booking/internal/platform/db"
	"github.com/ehr/booking/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "booking-server",
		Short:        "Appointment booking API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(parseLevel(cfg.LogLevel))
}

// bootstrap loads config and builds the app for a one-shot command.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, newLogger(cfg))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server, visit sweeper and reminder dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(ctx context.Context, fn func(*db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(db.NewMigrator(pool, migrations.Files))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				count, err := m.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete every upcoming visit whose end time has passed, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.scheduling.SweepElapsed(cmd.Context(), time.Now())
			fmt.Printf("Completed %d visit(s).\n", n)
			return err
		},
	}
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and dispatch reminders",
	}

	due := &cobra.Command{
		Use:   "due",
		Short: "List reminder occurrences due at a point in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := time.Now()
			if s, _ := cmd.Flags().GetString("as-of"); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return fmt.Errorf("--as-of must be RFC3339: %w", err)
				}
				asOf = t
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			occs, err := a.reminders.DueReminders(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(occs)
		},
	}
	due.Flags().String("as-of", "", "RFC3339 instant to evaluate (default now)")
	cmd.AddCommand(due)

	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Publish every due reminder occurrence once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.dispatcher.DispatchDue(cmd.Context(), time.Now())
			fmt.Printf("Published %d reminder(s).\n", n)
			return err
		},
	})

	return cmd
}
