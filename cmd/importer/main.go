package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/course-eval-api/internal/repository"
	"github.com/noah-isme/course-eval-api/internal/service"
	"github.com/noah-isme/course-eval-api/pkg/cache"
	"github.com/noah-isme/course-eval-api/pkg/config"
	"github.com/noah-isme/course-eval-api/pkg/database"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/logger"
	"github.com/noah-isme/course-eval-api/pkg/storage"
)

var retryBackoff = time.Second

type importOptions struct {
	semesterID string
	file       string
	retries    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "importer",
		Short:         "Import campus management exports into course evaluations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newJSONCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newJSONCmd() *cobra.Command {
	opts := importOptions{retries: -1}

	cmd := &cobra.Command{
		Use:   "json",
		Short: "Import a JSON export into a semester",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.semesterID, "semester", "", "Semester ID to import into (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Path to the JSON export (required)")
	cmd.Flags().IntVar(&opts.retries, "retries", -1, "Retries after a transaction conflict (default: IMPORT_MAX_RETRIES)")
	_ = cmd.MarkFlagRequired("semester")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, opts importOptions) error {
	raw, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	location, err := time.LoadLocation(cfg.Import.Timezone)
	if err != nil {
		return fmt.Errorf("load import timezone %q: %w", cfg.Import.Timezone, err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	params := service.ImportServiceParams{
		DB:            db,
		Semesters:     repository.NewSemesterRepository(db),
		Users:         repository.NewUserProfileRepository(db),
		CourseTypes:   repository.NewCourseTypeRepository(db),
		Programs:      repository.NewProgramRepository(db),
		Courses:       repository.NewCourseRepository(db),
		Evaluations:   repository.NewEvaluationRepository(db),
		Contributions: repository.NewContributionRepository(db),
		Locker:        repository.NewImportLockRepository(redisClient),
		Metrics:       service.NewMetricsService(),
		Logger:        logr,
		Config: service.ImportServiceConfig{
			Location:          location,
			LockTTL:           cfg.Import.LockTTL,
			EmailReplacements: cfg.Import.EmailReplacements,
		},
	}
	if cfg.Import.ReportDir != "" {
		reportStore, err := storage.NewLocalStorage(cfg.Import.ReportDir)
		if err != nil {
			return fmt.Errorf("prepare report directory: %w", err)
		}
		params.Archiver = service.NewExportService(reportStore, logr, nil, nil)
	}
	importSvc := service.NewImportService(params)

	retries := opts.retries
	if retries < 0 {
		retries = cfg.Import.MaxRetries
	}
	return importWithRetry(ctx, logr, retries, func(ctx context.Context) (*service.ImportReport, error) {
		return importSvc.ImportJSON(ctx, opts.semesterID, raw)
	})
}

// importWithRetry repeats run while it fails with a retryable transaction conflict.
func importWithRetry(ctx context.Context, logr *zap.Logger, retries int, run func(context.Context) (*service.ImportReport, error)) error {
	for attempt := 0; ; attempt++ {
		report, err := run(ctx)
		if err == nil {
			fmt.Print(report.Log())
			return nil
		}
		if !appErrors.IsRetryable(err) || attempt >= retries {
			return err
		}
		backoff := time.Duration(attempt+1) * retryBackoff
		logr.Warn("import conflicted, retrying", zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
	}
}
