package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <up|down|status|to|create|validate> [flags]

  up        apply every pending migration
  down      roll back the latest migration
  status    log the applied state of each migration
  to        move to -version (YYYYMMDDHHMMSS), up or down
  create    write a new empty migration named -name
  validate  check file names and goose annotations
`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version for -cmd=to")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	_ = godotenv.Load()

	if err := run(*cmd, *dir, *name, *version); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(cmd, dir, name, version string) error {
	switch cmd {
	case "create":
		if name == "" {
			return fmt.Errorf("-name is required for create")
		}
		path, err := migrate.Create(dir, name)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "validate":
		return migrate.Validate(migrate.Source(dir))
	case "up", "down", "status", "to":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	if cmd == "to" && version == "" {
		return fmt.Errorf("-version is required for to")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "storefront-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	pool, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(pool, migrate.Source(dir), logg)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = runner.Status(ctx)
	case "to":
		err = runner.To(ctx, version)
	}
	if err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.completed")
	return nil
}
