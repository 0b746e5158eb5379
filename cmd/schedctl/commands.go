package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/scheduling-api/internal/app"
	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/service/notification"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

// env is what the database-backed commands run against.
type env struct {
	services  *app.Services
	repos     app.Repositories
	deliverer worker.Deliverer
	logger    *logger.Logger
	close     func()
}

type cli struct {
	configPath string
	out        io.Writer
	loadConfig func(path string) (*config.Config, error)
	connect    func(ctx context.Context, cfg *config.Config) (*env, error)
}

func defaultCLI() *cli {
	return &cli{
		out:        os.Stdout,
		loadConfig: config.LoadConfig,
		connect:    connectPostgres,
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*env, error) {
	log := app.NewLogger(cfg.Log)
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	broker, err := app.NewBroker(ctx, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	repos := app.PostgresRepositories(db)
	sender := email.NewSMTPSender(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	return &env{
		services:  app.NewServices(cfg, repos, log, nil),
		repos:     repos,
		deliverer: notification.NewService(repos.Appointments, repos.Directory, sender, broker),
		logger:    log,
		close: func() {
			broker.Close()
			db.Close()
		},
	}, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "schedctl",
		Short:        "Scheduling operator tool",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config.yml")
	root.SetOut(c.out)

	root.AddCommand(slotsCmd(c))
	root.AddCommand(suggestCmd(c))
	root.AddCommand(sweepRemindersCmd(c))
	root.AddCommand(tokenCmd(c))
	return root
}

// withEnv loads config, connects, and runs fn.
func (c *cli) withEnv(cmd *cobra.Command, fn func(cfg *config.Config, e *env) error) error {
	cfg, err := c.loadConfig(c.configPath)
	if err != nil {
		return err
	}
	e, err := c.connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if e.close != nil {
		defer e.close()
	}
	return fn(cfg, e)
}

func slotsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List a doctor's slots on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, date, err := doctorAndDate(cmd)
			if err != nil {
				return err
			}
			return c.withEnv(cmd, func(_ *config.Config, e *env) error {
				day, err := e.services.Availability.GetAvailableSlots(cmd.Context(), doctorID, date)
				if err != nil {
					return err
				}
				if !day.Working {
					fmt.Fprintln(cmd.OutOrStdout(), day.Message)
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tAVAILABLE\tREASON")
				for _, s := range day.Slots {
					fmt.Fprintf(w, "%s\t%t\t%s\n", s.Time, s.Available, s.Reason)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func suggestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest open times near a requested time",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, date, err := doctorAndDate(cmd)
			if err != nil {
				return err
			}
			rawTime, _ := cmd.Flags().GetString("time")
			at, err := timeofday.Parse(rawTime)
			if err != nil {
				return err
			}

			return c.withEnv(cmd, func(cfg *config.Config, e *env) error {
				days := cfg.Scheduling.DefaultLookAheadDays
				if cmd.Flags().Changed("days") {
					days, _ = cmd.Flags().GetInt("days")
				}

				suggestions, err := e.services.Availability.GetSuggestions(cmd.Context(), doctorID, date, at, days)
				if err != nil {
					return err
				}
				if len(suggestions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no open times found")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tTIME\tPRIORITY\tDELTA")
				for _, s := range suggestions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%dm\n", s.Date, s.Time, s.Priority, s.DeltaMinutes)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "date as YYYY-MM-DD")
	cmd.Flags().String("time", "", "requested time as HH:MM")
	cmd.Flags().Int("days", 0, "days to look ahead (default from config)")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func sweepRemindersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-reminders",
		Short: "Deliver due reminders once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(cmd, func(cfg *config.Config, e *env) error {
				sweeper, err := worker.NewReminderSweeper(e.repos.Reminders, e.deliverer, worker.ReminderSweeperConfig{
					BatchSize:    cfg.Reminders.BatchSize,
					PollInterval: cfg.Reminders.PollInterval,
					MaxAttempts:  cfg.Reminders.MaxAttempts,
				}, e.logger, nil)
				if err != nil {
					return err
				}
				sent, err := sweeper.SweepOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d reminders\n", sent)
				return nil
			})
		},
	}
}

// tokenCmd signs a short-lived access token for local testing.
func tokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawUser, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := c.loadConfig(c.configPath)
			if err != nil {
				return err
			}
			token, err := middleware.NewAuthMiddleware(middleware.AuthConfig{
				Secret:   cfg.JWT.Secret,
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
			}).IssueToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id to put in the token subject")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func doctorAndDate(cmd *cobra.Command) (uuid.UUID, time.Time, error) {
	rawDoctor, _ := cmd.Flags().GetString("doctor")
	doctorID, err := uuid.Parse(rawDoctor)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid doctor id: %w", err)
	}
	rawDate, _ := cmd.Flags().GetString("date")
	date, err := timeofday.ParseDate(rawDate)
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	return doctorID, date, nil
}
