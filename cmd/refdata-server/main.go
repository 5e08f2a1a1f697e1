package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refdata/refdata/internal/config"
	"github.com/refdata/refdata/internal/domain/pricing"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/cache"
	"github.com/refdata/refdata/internal/platform/db"
	"github.com/refdata/refdata/internal/seed"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "refdata-server",
		Short:        "Referential data API server",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	root.AddCommand(seedCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the referential API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply pending migrations to --schema, or to every tenant schema when it is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")
			parallel, _ := cmd.Flags().GetInt("parallel")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir))
			schemas := []string{schema}
			if schema == "" {
				if schemas, err = db.TenantSchemas(ctx, pool); err != nil {
					return err
				}
				if len(schemas) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tenant schemas found. Create one with: refdata-server tenant create --name <id>")
					return nil
				}
			}

			applied, err := migrator.UpAll(ctx, schemas, parallel)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, s := range schemas {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s)\n", s, applied[s])
			}
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default: every tenant schema)")
	upCmd.Flags().String("dir", "", "Migrations directory (default: MIGRATIONS_DIR, then the embedded set)")
	upCmd.Flags().Int("parallel", 4, "Schemas migrated concurrently")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaName("default"), "Target schema")
	statusCmd.Flags().String("dir", "", "Migrations directory (default: MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrationFiles(cfg.MigrationsDir)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML fixture into a tenant",
		Long: "Create the referential records of a YAML fixture in one transaction. " +
			"Records whose code already exists are left untouched, so a fixture can be applied repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			tenant, _ := cmd.Flags().GetString("tenant")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			fixture, err := readFixture(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			mods := newModules(pool)
			ctx = auth.WithIdentity(ctx, "seed", []string{auth.RoleAdmin})

			var report seed.Report
			err = db.InTenant(ctx, pool, tenant, func(ctx context.Context) error {
				return db.WithTx(ctx, pool, func(ctx context.Context) error {
					r, err := seed.Apply(ctx, mods.seedServices(), fixture)
					report = r
					return err
				})
			})
			if err != nil {
				return fmt.Errorf("seed %s: %w", tenant, err)
			}

			if cfg.RedisURL != "" {
				r, err := cache.NewRedis(ctx, cfg.RedisURL)
				if err != nil {
					logger.Warn().Err(err).Msg("pricing snapshots not invalidated")
				} else {
					defer r.Close()
					quotes := pricing.NewQuoteService(pricing.NewPGSnapshotLoader(pool), pricing.WithSnapshotCache(r, cfg.CacheTTL))
					if err := quotes.Invalidate(ctx, tenant); err != nil {
						logger.Warn().Err(err).Msg("pricing snapshots not invalidated")
					}
				}
			}

			printReport(cmd.OutOrStdout(), tenant, report)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Fixture file, or - for stdin")
	cmd.Flags().String("tenant", "", "Tenant identifier (default: DEFAULT_TENANT)")
	return cmd
}

func readFixture(path string, stdin io.Reader) (*seed.Fixture, error) {
	if path == "-" {
		return seed.Load(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return seed.Load(f)
}

func printReport(w io.Writer, tenant string, r seed.Report) {
	fmt.Fprintf(w, "Seeded tenant %s\n", tenant)
	fmt.Fprintf(w, "%-20s %8s %8s\n", "ENTITY", "CREATED", "EXISTING")
	for _, entity := range r.Entities() {
		c := r[entity]
		fmt.Fprintf(w, "%-20s %8d %8d\n", strings.ToUpper(entity), c.Created, c.Existing)
	}
}
