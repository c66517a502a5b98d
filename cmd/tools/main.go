package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"climatemap-server/internal/config"
	"climatemap-server/internal/db"
	"climatemap-server/internal/logging"
	"climatemap-server/internal/migrate"
	climate "climatemap-server/internal/modules/climate"
	"climatemap-server/internal/modules/climate/repository"
)

const usage = `usage: %s <command>
  migrate              apply pending schema migrations
  status               list pending migrations
  import <csv> [mode]  load observations (mode: append-if-empty | replace, default replace)
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes one tools command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintf(stderr, usage, args[0])
		return 1
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "dotenv: %v\n", err)
		return 1
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	slog.SetDefault(logging.New(cfg, "dev", "climatemap-tools"))

	conn, err := db.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "db open: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	ctx := context.Background()
	switch args[1] {
	case "migrate":
		if err := migrate.RunContext(ctx, conn, slog.Default()); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations applied")
	case "status":
		pending, err := migrate.Pending(ctx, conn)
		if err != nil {
			fmt.Fprintf(stderr, "status: %v\n", err)
			return 1
		}
		if len(pending) == 0 {
			fmt.Fprintln(stdout, "up to date")
			return 0
		}
		for _, p := range pending {
			fmt.Fprintln(stdout, "pending", p)
		}
	case "import":
		if len(args) < 3 {
			fmt.Fprintf(stderr, usage, args[0])
			return 1
		}
		mode := config.ImportReplace
		if len(args) > 3 {
			mode = args[3]
		}
		if err := migrate.RunContext(ctx, conn, slog.Default()); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return 1
		}
		rec, imported, err := climate.NewImporter(repository.NewRepository(conn), slog.Default(), nil).Import(args[2], mode)
		if err != nil {
			fmt.Fprintf(stderr, "import: %v\n", err)
			return 1
		}
		if !imported {
			fmt.Fprintln(stdout, "store already populated, nothing imported")
			return 0
		}
		fmt.Fprintf(stdout, "imported %d rows (%d skipped) from %s\n", rec.RowsLoaded, rec.RowsSkipped, rec.Source)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		return 1
	}
	return 0
}
