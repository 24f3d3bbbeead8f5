// Command queuectl inspects and repairs the mutation queue directly in the database.
//
//	queuectl [-config path] stats
//	queuectl [-config path] failed [-limit n]
//	queuectl [-config path] requeue <id>...
//	queuectl [-config path] recover [-older-than d]
//	queuectl [-config path] export [-status s]
//
// A running server picks requeued intents up on its next poll.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"moviesite/internal/config"
	"moviesite/internal/database"
	"moviesite/internal/export"
	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("queuectl", flag.ExitOnError)
	configPath := global.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
	_ = global.Parse(args)

	if global.NArg() == 0 {
		return fmt.Errorf("usage: queuectl [-config path] stats|failed|requeue|recover|export")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "stats":
		counts, err := db.CountIntentsByStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(counts)

	case "failed":
		fs := flag.NewFlagSet("failed", flag.ExitOnError)
		limit := fs.Int("limit", 50, "max intents to list")
		_ = fs.Parse(rest)

		intents, err := db.FailedIntents(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(intents)

	case "requeue":
		if len(rest) == 0 {
			return fmt.Errorf("requeue needs at least one intent id")
		}
		for _, raw := range rest {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("bad intent id %q", raw)
			}
			if _, err := db.RequeueIntent(ctx, id); err != nil {
				return fmt.Errorf("requeue %d: %w", id, err)
			}
			logger.Info().Int64("intent_id", id).Msg("intent requeued")
		}
		return nil

	case "recover":
		fs := flag.NewFlagSet("recover", flag.ExitOnError)
		olderThan := fs.Duration("older-than", cfg.Queue.StaleAfter, "processing age that counts as stale")
		_ = fs.Parse(rest)

		n, err := db.RequeueStaleIntents(ctx, time.Now().Add(-*olderThan))
		if err != nil {
			return err
		}
		logger.Info().Int64("count", n).Msg("stale intents returned to pending")
		return nil

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		status := fs.String("status", "", "only intents with this status")
		_ = fs.Parse(rest)

		path, err := export.NewExporter(db, cfg.Exports.Path).SaveFile(ctx, export.Filter{Status: models.IntentStatus(*status)})
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("Excel file created")
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
