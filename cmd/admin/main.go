// Command admin runs database maintenance for the record import service.
//
//	admin migrate                         apply pending migrations
//	admin rollback                        revert the last migration
//	admin version                         print the schema version
//	admin add-owner -name N -email E      register a record owner
//	admin reset -yes                      delete every project record
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/recordimport/internal/admin"
	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <migrate|rollback|version|add-owner|reset> [flags]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(context.Background(), cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		return store.Migrate(cfg.Database.URL, logger)

	case "rollback":
		return store.Rollback(cfg.Database.URL, logger)

	case "version":
		version, dirty, err := store.SchemaVersion(cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty: %v)\n", version, dirty)
		return nil

	case "add-owner":
		fs := flag.NewFlagSet("add-owner", flag.ExitOnError)
		name := fs.String("name", "", "owner full name (required)")
		email := fs.String("email", "", "owner email (required)")
		_ = fs.Parse(args)

		return withAdmin(ctx, cfg, logger, func(a *admin.Admin) error {
			id, err := a.AddOwner(ctx, *name, *email)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		yes := fs.Bool("yes", false, "confirm deleting every project record")
		_ = fs.Parse(args)
		if !*yes {
			return errors.New("reset deletes every project record; pass -yes to confirm")
		}

		return withAdmin(ctx, cfg, logger, func(a *admin.Admin) error {
			n, err := a.ResetRecords(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d project records\n", n)
			return nil
		})

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func withAdmin(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(*admin.Admin) error) error {
	pool, err := store.Connect(ctx, cfg.Database.URL, 2, 0, cfg.Database.MaxConnLifetime, cfg.Database.MaxConnIdleTime)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(admin.New(store.New(pool), logger))
}
