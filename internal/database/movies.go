package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"moviesite/internal/models"
)

const movieColumns = `id, title, description, rating, release_date, duration, genre, director,
	cast_json, image, scene_images_json, created_by, created_at, updated_at`

func (db *DB) CreateMovie(ctx context.Context, fields models.MovieFields) (*models.Movie, error) {
	castJSON, err := encodeList(fields.Cast)
	if err != nil {
		return nil, err
	}
	scenesJSON, err := encodeList(fields.SceneImages)
	if err != nil {
		return nil, err
	}

	ts := now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO movies (
			title, description, rating, release_date, duration, genre, director,
			cast_json, image, scene_images_json, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fields.Title, fields.Description, fields.Rating, fields.ReleaseDate, fields.Duration,
		fields.Genre, fields.Director, castJSON, fields.Image, scenesJSON, fields.CreatedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create movie: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read movie id: %w", err)
	}

	return &models.Movie{ID: id, MovieFields: fields, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (db *DB) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	row := db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	movie, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return movie, nil
}

// UpdateMovieByID applies the set fields of changes. ErrNotFound means the target is gone.
func (db *DB) UpdateMovieByID(ctx context.Context, id int64, changes models.MovieChanges) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if changes.Title != nil {
		add("title", *changes.Title)
	}
	if changes.Description != nil {
		add("description", *changes.Description)
	}
	if changes.Rating != nil {
		add("rating", *changes.Rating)
	}
	if changes.ReleaseDate != nil {
		add("release_date", changes.ReleaseDate.UTC())
	}
	if changes.Duration != nil {
		add("duration", *changes.Duration)
	}
	if changes.Genre != nil {
		add("genre", *changes.Genre)
	}
	if changes.Director != nil {
		add("director", *changes.Director)
	}
	if changes.Cast != nil {
		castJSON, err := encodeList(*changes.Cast)
		if err != nil {
			return err
		}
		add("cast_json", castJSON)
	}
	if changes.Image != nil {
		add("image", *changes.Image)
	}
	if changes.SceneImages != nil {
		scenesJSON, err := encodeList(*changes.SceneImages)
		if err != nil {
			return err
		}
		add("scene_images_json", scenesJSON)
	}
	if len(sets) == 0 {
		return errors.New("no movie fields to update")
	}

	add("updated_at", now())
	args = append(args, id)

	query := `UPDATE movies SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update movie: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMovieByID reports whether a row was removed.
func (db *DB) DeleteMovieByID(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete movie: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMovies returns one page of movies and the total number of matches.
func (db *DB) ListMovies(ctx context.Context, q models.MovieQuery) ([]*models.Movie, int, error) {
	page, limit := models.NormalizePage(q.Page, q.Limit, models.DefaultMoviePageSize)

	where := ""
	var args []any
	if s := strings.TrimSpace(q.Search); s != "" {
		where = ` WHERE LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`
		pattern := likePattern(s)
		args = append(args, pattern, pattern)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count movies: %w", err)
	}

	query := `SELECT ` + movieColumns + ` FROM movies` + where +
		` ORDER BY ` + movieOrder(q.Sort, q.Desc) + ` LIMIT ? OFFSET ?`
	args = append(args, limit, models.Offset(page, limit))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	var movies []*models.Movie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate movies: %w", err)
	}
	return movies, total, nil
}

func (db *DB) CountMovies(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

func movieOrder(sort models.MovieSort, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch sort {
	case models.SortTitle:
		return "title COLLATE NOCASE " + dir + ", id " + dir
	case models.SortRating:
		return "rating " + dir + ", id " + dir
	case models.SortReleaseDate:
		return "release_date " + dir + ", id " + dir
	case models.SortDuration:
		return "duration " + dir + ", id " + dir
	default:
		return "created_at DESC, id DESC"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (*models.Movie, error) {
	var (
		m          models.Movie
		releaseAt  sql.NullTime
		createdBy  sql.NullInt64
		castJSON   string
		scenesJSON string
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &m.Rating, &releaseAt, &m.Duration, &m.Genre, &m.Director,
		&castJSON, &m.Image, &scenesJSON, &createdBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if releaseAt.Valid {
		t := releaseAt.Time
		m.ReleaseDate = &t
	}
	if createdBy.Valid {
		id := createdBy.Int64
		m.CreatedBy = &id
	}
	if m.Cast, err = decodeList(castJSON); err != nil {
		return nil, err
	}
	if m.SceneImages, err = decodeList(scenesJSON); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	items := []string{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return items, nil
}
