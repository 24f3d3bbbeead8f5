package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"moviesite/internal/database"
	"moviesite/internal/models"
	"moviesite/internal/queue"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalogue is the seed file layout.
type Catalogue struct {
	Movies []models.MovieFields `yaml:"movies"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run queues one insert per movie; a running server applies them.
func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		moviesPath = flag.String("movies", "configs/movies.yaml", "path to movies.yaml")
		dbPath     = flag.String("db", "./data/moviesite.db", "path to sqlite db")
		maxRetries = flag.Int("max-retries", models.DefaultMaxRetries, "retry budget per intent")
	)
	flag.Parse()

	data, err := os.ReadFile(*moviesPath)
	if err != nil {
		return fmt.Errorf("read movies: %w", err)
	}
	var cat Catalogue
	if err = yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse movies: %w", err)
	}
	if len(cat.Movies) == 0 {
		return fmt.Errorf("no movies in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	enqueuer := queue.NewEnqueuer(db, nil, nil, *maxRetries, &logger)

	queued := 0
	for _, movie := range cat.Movies {
		intent := &models.Intent{Operation: models.OpInsert, Payload: models.InsertPayload{Movie: movie}}
		id, err := enqueuer.Enqueue(ctx, intent)
		if err != nil {
			logger.Warn().Err(err).Str("title", movie.Title).Msg("skip movie")
			continue
		}
		logger.Info().Int64("intent_id", id).Str("title", movie.Title).Msg("movie queued")
		queued++
	}

	logger.Info().Int("queued", queued).Int("total", len(cat.Movies)).Msg("seed finished")
	return nil
}
