// Command migrate batch-normalizes legacy or corrupted gamification records.
//
// It walks every user page by page, coerces the stored document into the
// canonical shape, validates it, and persists the result. Per-user failures
// never abort the run; the exit code is 0 only when every user succeeded.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/storage"
)

var (
	flagDryRun       bool
	flagValidateOnly bool
	flagBatchSize    int
	flagNoBackup     bool
	flagStats        bool
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Normalize and validate gamification records",
	Long:          "Walks all users, normalizes legacy gamification documents into the canonical shape, validates them, and persists the result.\n\nRequires DATABASE_URI in the environment.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "log intended changes without writing")
	rootCmd.Flags().BoolVar(&flagValidateOnly, "validate-only", false, "validate records without writing")
	rootCmd.Flags().IntVar(&flagBatchSize, "batch-size", 100, "users per page")
	rootCmd.Flags().BoolVar(&flagNoBackup, "no-backup", false, "skip pre-write backup snapshots")
	rootCmd.Flags().BoolVar(&flagStats, "stats", false, "print the full report including error messages")
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URI must be set in the environment")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	store := storage.NewGormStore(db)
	snapshots := storage.NewRedisSnapshotStore(redisFromEnv())
	migrator := gamification.NewMigrator(store, snapshots, sugar)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
	defer cancel()

	report, err := migrator.Run(ctx, gamification.MigrateOptions{
		DryRun:       flagDryRun,
		ValidateOnly: flagValidateOnly,
		BatchSize:    flagBatchSize,
		Backup:       !flagNoBackup,
	})
	if err != nil {
		return fmt.Errorf("migration aborted: %w", err)
	}

	fmt.Printf("total: %d  migrated: %d  unchanged: %d  failed: %d\n",
		report.Total, report.Migrated, report.Unchanged, report.Failed)
	if flagStats && len(report.Errors) > 0 {
		fmt.Println("errors:")
		for _, msg := range report.Errors {
			fmt.Println("  - " + msg)
		}
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d users failed migration", report.Failed)
	}
	return nil
}

func redisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 6379
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	dbIdx := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dbIdx = n
		}
	}
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       dbIdx,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
