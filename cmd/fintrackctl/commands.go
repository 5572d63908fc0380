package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/middleware/auth"
	"fintrack/internal/reportpdf"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var jobAliases = map[string]amqp.JobType{
	"recalculate": amqp.JobRecalculateBudget,
	"report":      amqp.JobGenerateMonthlyReport,
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			version, err := storage.RunMigrations(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d in %s\n", version, cfg.SQLiteDBPath)
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:       "enqueue recalculate|report",
		Short:     "Publish a job for the worker",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"recalculate", "report"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			jobType := jobAliases[args[0]]
			if err := client.PublishJob(cmd.Context(), jobType, userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s for %s\n", jobType, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user the job runs for")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func recalculateCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate a user's budgets without going through the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := services.NewBudgetRecalculator(repo).Recalculate(cmd.Context(), userID); err != nil {
				return err
			}
			views, err := repo.ListBudgetViews(cmd.Context(), userID)
			if err != nil {
				return err
			}
			for _, v := range views {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tspent %s\tremaining %s\t%s%%\n",
					v.ID, v.CategoryName, v.Period,
					v.Computed.CurrentSpent.StringFixed(2), v.Computed.Remaining.StringFixed(2), v.Computed.PercentageUsed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user whose budgets are recalculated")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reportCmd() *cobra.Command {
	var userID, pdfPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate last month's report for a user without going through the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			exporter, err := cli.NewReportExporter(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			rep, err := services.NewReportGenerator(repo, exporter).GenerateMonthlyReport(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if pdfPath != "" {
				if err := writePDF(pdfPath, rep); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				ID      string `json:"id"`
				Content any    `json:"content"`
			}{rep.ID, rep.Content})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user the report is generated for")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "also write the report as a PDF to this path")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if ttl <= 0 {
				return fmt.Errorf("invalid ttl %s: must be positive", ttl)
			}
			token, err := auth.NewAuthenticator(secret).IssueToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user_id claim of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writePDF(path string, rep core.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return reportpdf.Render(f, rep)
}

func openRepository() (*storage.SQLiteRepository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteRepository(cfg.SQLiteDBPath)
}
