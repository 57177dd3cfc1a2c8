package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/dayview/internal/config"
	"github.com/clinic/dayview/internal/domain/scheduling"
	"github.com/clinic/dayview/internal/platform/db"
	"github.com/clinic/dayview/internal/platform/middleware"
	"github.com/clinic/dayview/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dayview-server",
		Short: "Clinic day-view scheduling server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(dayviewCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the day-view API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			migrator := db.NewMigrator(pool, dir).WithSchema(schema)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, dir).WithSchema(schema).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset (or a dataset file) into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			file, _ := cmd.Flags().GetString("file")
			ctx := cmd.Context()

			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg)

			var ds scheduling.Dataset
			if file != "" {
				ds, err = scheduling.LoadDatasetFile(file)
			} else {
				var date time.Time
				date, err = parseDay(cfg, dateStr)
				if err == nil {
					ds = scheduling.DemoDataset(date)
				}
			}
			if err != nil {
				return err
			}

			if err := scheduling.SeedPG(ctx, pool, ds); err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Printf("Seeded %d doctor(s), %d patient(s), %d appointment(s).\n",
				len(ds.Doctors), len(ds.Patients), len(ds.Appointments))

			if cfg.RedisURL == "" {
				return nil
			}
			rdb, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				logger.Warn().Err(err).Msg("seeded, but could not notify running servers")
				return nil
			}
			defer rdb.Close()

			var pub notify.Publisher = notify.NewRedisNotifier(rdb, notify.DefaultChannel, logger)
			if err := pub.Publish(ctx, doctorIDs(ds)...); err != nil {
				logger.Warn().Err(err).Msg("seeded, but could not notify running servers")
			}
			return nil
		},
	}
	cmd.Flags().String("date", "", "Day to place the demo appointments on, YYYY-MM-DD (default today)")
	cmd.Flags().String("file", "", "JSON dataset to load instead of the demo dataset")
	return cmd
}

func dayviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dayview",
		Short: "Print one doctor's day view",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			dateStr, _ := cmd.Flags().GetString("date")
			asJSON, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			date, err := parseDay(cfg, dateStr)
			if err != nil {
				return err
			}
			repo, pool, err := openRepository(ctx, cfg, date, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			loc, _ := cfg.Location()
			svc := scheduling.NewService(repo, cfg.SlotConfig(), loc, logger)
			view, err := svc.DayView(ctx, doctorID, date)
			if err != nil {
				return err
			}
			if view.Doctor == nil {
				return fmt.Errorf("doctor %s: %w", doctorID, scheduling.ErrDoctorNotFound)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			return renderDayView(cmd.OutOrStdout(), view, svc.Location())
		},
	}
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("date", "", "Day to show, YYYY-MM-DD (default today)")
	cmd.Flags().Bool("json", false, "Print the day view as JSON")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// connect loads the config and opens a postgres pool regardless of
// DATA_SOURCE; migrate and seed always target the database.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		TimeZone: cfg.TimeZone,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// openRepository builds the configured data source. The demo dataset is
// placed on demoDay. The pool is nil for the memory source.
func openRepository(ctx context.Context, cfg *config.Config, demoDay time.Time, logger zerolog.Logger) (scheduling.Repository, *pgxpool.Pool, error) {
	if cfg.DataSource == config.SourcePostgres {
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("connected to database")
		return scheduling.NewPGRepo(pool), pool, nil
	}

	var ds scheduling.Dataset
	if cfg.DatasetFile != "" {
		var err error
		ds, err = scheduling.LoadDatasetFile(cfg.DatasetFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("file", cfg.DatasetFile).Msg("loaded dataset")
	} else {
		ds = scheduling.DemoDataset(demoDay)
		logger.Info().Str("date", demoDay.Format(scheduling.DateLayout)).Msg("serving demo dataset")
	}
	repo, err := scheduling.NewMemoryRepo(ds)
	if err != nil {
		return nil, nil, err
	}
	return repo, nil, nil
}

// parseDay reads a YYYY-MM-DD flag in the configured zone; empty means today.
func parseDay(cfg *config.Config, s string) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return scheduling.StartOfDay(time.Now().In(loc)), nil
	}
	d, err := time.ParseInLocation(scheduling.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func doctorIDs(ds scheduling.Dataset) []string {
	ids := make([]string, 0, len(ds.Doctors))
	for _, d := range ds.Doctors {
		ids = append(ids, d.ID)
	}
	return ids
}
