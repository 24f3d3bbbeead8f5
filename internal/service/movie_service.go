package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviesite/internal/database"
	"moviesite/internal/domain"
	"moviesite/internal/models"

	"github.com/rs/zerolog"
)

// MovieService serves catalogue reads directly and turns writes into queued intents.
type MovieService struct {
	reader   domain.MovieReader
	enqueuer domain.Enqueuer
	blobs    domain.BlobStore
	logger   *zerolog.Logger
}

func NewMovieService(reader domain.MovieReader, enqueuer domain.Enqueuer, blobs domain.BlobStore, logger *zerolog.Logger) *MovieService {
	return &MovieService{
		reader:   reader,
		enqueuer: enqueuer,
		blobs:    blobs,
		logger:   logger,
	}
}

func (s *MovieService) List(ctx context.Context, q models.MovieQuery) ([]*models.Movie, models.Pagination, error) {
	q.Page, q.Limit = models.NormalizePage(q.Page, q.Limit, models.DefaultMoviePageSize)

	movies, total, err := s.reader.ListMovies(ctx, q)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if movies == nil {
		movies = []*models.Movie{}
	}
	return movies, models.NewPagination(q.Page, q.Limit, total), nil
}

// Search is List with a mandatory search term.
func (s *MovieService) Search(ctx context.Context, q models.MovieQuery) ([]*models.Movie, models.Pagination, error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.Search == "" {
		return nil, models.Pagination{}, fmt.Errorf("%w: search query is required", ErrValidation)
	}
	return s.List(ctx, q)
}

func (s *MovieService) Get(ctx context.Context, id int64) (*models.Movie, error) {
	movie, err := s.reader.GetMovie(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return movie, err
}

// Create queues an insert and returns the intent id.
func (s *MovieService) Create(ctx context.Context, fields models.MovieFields) (int64, error) {
	fields.Title = strings.TrimSpace(fields.Title)
	return s.enqueue(ctx, models.InsertPayload{Movie: fields})
}

// Update queues a change set for an existing movie. The movie must exist now;
// whether it still exists when the intent is applied is the queue's concern.
func (s *MovieService) Update(ctx context.Context, id int64, changes models.MovieChanges) (int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return 0, err
	}
	if changes.IsEmpty() {
		return 0, fmt.Errorf("%w: no fields to update", ErrValidation)
	}
	return s.enqueue(ctx, models.UpdatePayload{TargetID: id, Changes: changes})
}

// Delete queues a removal. Absent movies are not checked; applying the delete is idempotent.
func (s *MovieService) Delete(ctx context.Context, id int64) (int64, error) {
	return s.enqueue(ctx, models.DeletePayload{TargetID: id})
}

// SaveImage stores an uploaded image and returns its public URL.
func (s *MovieService) SaveImage(ctx context.Context, data []byte, filename string) (string, error) {
	if s.blobs == nil {
		return "", errors.New("image storage is not configured")
	}
	return s.blobs.Save(ctx, data, filename)
}

func (s *MovieService) enqueue(ctx context.Context, payload models.Payload) (int64, error) {
	// max retries come from the enqueuer's configuration
	intent := &models.Intent{Operation: payload.Operation(), Payload: payload}

	id, err := s.enqueuer.Enqueue(ctx, intent)
	if errors.Is(err, models.ErrInvalidIntent) {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("operation", string(payload.Operation())).Msg("enqueue movie intent")
		return 0, err
	}
	return id, nil
}
