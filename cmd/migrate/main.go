package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/revenue-engine/internal/revenue/store"
	"github.com/angelmondragon/revenue-engine/pkg/bigquery"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/db"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/migrate"
)

type flags struct {
	dir     string
	name    string
	version string
}

// offline commands never open the settings database.
var offline = map[string]func(context.Context, *config.Config, *logger.Logger, flags) error{
	"create": func(_ context.Context, _ *config.Config, _ *logger.Logger, f flags) error {
		if f.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(f.dir, f.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(_ context.Context, _ *config.Config, _ *logger.Logger, f flags) error {
		if err := migrate.ValidateDir(f.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
	"bq-bootstrap": func(ctx context.Context, cfg *config.Config, logg *logger.Logger, _ flags) error {
		return bootstrapBigQuery(ctx, cfg, logg)
	},
}

// online commands run goose against the settings database.
var online = map[string]func(context.Context, *sql.DB, string, flags) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, sqlDB *sql.DB, driver string, f flags) error {
		if f.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, driver, f.version)
	},
}

func gooseCommand(command string) func(context.Context, *sql.DB, string, flags) error {
	return func(ctx context.Context, sqlDB *sql.DB, driver string, _ flags) error {
		return migrate.Run(ctx, sqlDB, driver, command)
	}
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var f flags
	cmd := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	flag.StringVar(&f.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&f.name, "name", "", "migration name (for create)")
	flag.StringVar(&f.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": f.dir})

	if run, ok := offline[*cmd]; ok {
		exitOnError(ctx, logg, *cmd, run(ctx, cfg, logg, f))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(2)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)

	err = run(ctx, sqlDB, dbClient.Driver(), f)
	_ = dbClient.Close()
	exitOnError(ctx, logg, *cmd, err)
}

func commandNames() []string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bootstrapBigQuery creates the dataset and the append-only transactions table.
// The sessions table belongs to the web analytics pipeline and is only read.
func bootstrapBigQuery(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	client, err := bigquery.Open(ctx, cfg.GCP, cfg.BigQuery)
	if err != nil {
		return err
	}
	defer client.Close()

	createdDataset, err := client.EnsureDataset(ctx, cfg.BigQuery.Location)
	if err != nil {
		return err
	}
	createdTable, err := client.EnsureTable(ctx, cfg.BigQuery.TransactionsTable, store.TransactionsSchema())
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"dataset":         cfg.BigQuery.Dataset,
		"dataset_created": createdDataset,
		"table":           cfg.BigQuery.TransactionsTable,
		"table_created":   createdTable,
	}), "bigquery bootstrap complete")
	return nil
}

func exitOnError(ctx context.Context, logg *logger.Logger, cmd string, err error) {
	if err == nil {
		logg.Info(ctx, "migrate command finished")
		return
	}
	logg.Error(ctx, "migrate command failed", err)
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
