package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/seed"
	"github.com/hms/hms/internal/platform/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(collectionsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HMS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate absent collections with the built-in fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			conn, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			if force {
				if err := seed.Reset(ctx, conn.store); err != nil {
					return fmt.Errorf("reset seed sentinel: %w", err)
				}
			}
			fixtures, err := seed.Default()
			if err != nil {
				return err
			}
			res, err := seed.Run(ctx, conn.store, fixtures, logger)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Store already initialized; use --force to seed absent collections again.")
				return nil
			}
			fmt.Printf("Seeded %d collection(s), kept %d existing.\n", len(res.Seeded), len(res.Kept))
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Clear the initialized sentinel before seeding")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the postgres store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := migrationPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations, "migrations").Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := migrationPool()
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations, "migrations").Status(context.Background())
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
		},
	})
	return cmd
}

func migrationPool() (*pgxpool.Pool, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	return db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func collectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Inspect the persisted collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored keys with their record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			conn, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			rows, err := listCollections(ctx, conn.store)
			if err != nil {
				return err
			}
			fmt.Printf("%-24s %s\n", "KEY", "RECORDS")
			for _, r := range rows {
				fmt.Printf("%-24s %s\n", r.key, r.records)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump <key>",
		Short: "Print the stored value of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			conn, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			raw, ok, err := conn.store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %s is not stored", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	})
	return cmd
}

type collectionRow struct {
	key     string
	records string
}

// listCollections counts the records of every stored key. Values that are
// not JSON arrays are reported rather than failing the listing.
func listCollections(ctx context.Context, s store.Store) ([]collectionRow, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]collectionRow, 0, len(keys))
	for _, k := range keys {
		raw, _, err := s.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		var items []json.RawMessage
		count := "-"
		if k != seed.SentinelKey {
			if err := json.Unmarshal(raw, &items); err != nil {
				count = "malformed"
			} else {
				count = fmt.Sprint(len(items))
			}
		}
		rows = append(rows, collectionRow{key: k, records: count})
	}
	return rows, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "User id carried in the token subject")
	cmd.Flags().StringSlice("role", []string{auth.RoleAdmin}, "Role(s) granted by the token")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	conn, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer conn.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	if cfg.SeedOnStart {
		fixtures, err := seed.Default()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load fixtures")
		}
		if _, err := seed.Run(ctx, conn.store, fixtures, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed store")
		}
	}

	a, err := newApp(ctx, cfg, logger, conn)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open collections")
	}
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("change bridge stopped")
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// storeConn is an open store plus the clients behind it. pool is set for the
// postgres driver and redis whenever REDIS_ADDR is configured.
type storeConn struct {
	store store.Store
	pool  *pgxpool.Pool
	redis redis.UniversalClient
}

func (c *storeConn) Close() {
	c.store.Close()
	if c.pool != nil {
		c.pool.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*storeConn, error) {
	conn := &storeConn{}
	if cfg.RedisAddr != "" {
		conn.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	var err error
	switch cfg.StoreDriver {
	case config.DriverMemory:
		conn.store = store.NewMemoryStore()
	case config.DriverFile:
		conn.store, err = store.NewFileStore(cfg.StorePath)
	case config.DriverSQLite:
		conn.store, err = store.NewSQLiteStore(ctx, cfg.SQLitePath())
	case config.DriverPostgres:
		conn.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err == nil {
			conn.store, err = store.NewPostgresStore(ctx, conn.pool)
		}
	case config.DriverRedis:
		if conn.redis == nil {
			return nil, fmt.Errorf("REDIS_ADDR is required for STORE_DRIVER=redis")
		}
		conn.store = store.NewRedisStore(conn.redis, cfg.StorePrefix)
	case config.DriverS3:
		conn.store, err = store.NewS3Store(ctx, store.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.StorePrefix,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		err = fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if err != nil {
		if conn.pool != nil {
			conn.pool.Close()
		}
		if conn.redis != nil {
			conn.redis.Close()
		}
		return nil, err
	}
	return conn, nil
}
