package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MovieFields is the writable part of a movie record.
type MovieFields struct {
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Rating      float64    `json:"rating" yaml:"rating"`
	ReleaseDate *time.Time `json:"release_date,omitempty" yaml:"release_date"`
	Duration    int        `json:"duration" yaml:"duration"`
	Genre       string     `json:"genre" yaml:"genre"`
	Director    string     `json:"director" yaml:"director"`
	Cast        []string   `json:"cast" yaml:"cast"`
	Image       string     `json:"image" yaml:"image"`
	SceneImages []string   `json:"scene_images" yaml:"scene_images"`
	CreatedBy   *int64     `json:"created_by,omitempty" yaml:"-"`
}

func (f MovieFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return errors.New("title is required")
	}
	if err := validateRating(f.Rating); err != nil {
		return err
	}
	if f.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if len(f.SceneImages) > MaxSceneImages {
		return fmt.Errorf("maximum %d scene images allowed", MaxSceneImages)
	}
	return nil
}

// Movie is a catalogue record owned by the record store.
type Movie struct {
	ID int64 `json:"id"`
	MovieFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MovieChanges is a partial update; nil fields are left untouched.
type MovieChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	Genre       *string    `json:"genre,omitempty"`
	Director    *string    `json:"director,omitempty"`
	Cast        *[]string  `json:"cast,omitempty"`
	Image       *string    `json:"image,omitempty"`
	SceneImages *[]string  `json:"scene_images,omitempty"`
}

func (c MovieChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Rating == nil && c.ReleaseDate == nil &&
		c.Duration == nil && c.Genre == nil && c.Director == nil && c.Cast == nil &&
		c.Image == nil && c.SceneImages == nil
}

func (c MovieChanges) Validate() error {
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		return errors.New("title must not be blank")
	}
	if c.Rating != nil {
		if err := validateRating(*c.Rating); err != nil {
			return err
		}
	}
	if c.Duration != nil && *c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if c.SceneImages != nil && len(*c.SceneImages) > MaxSceneImages {
		return fmt.Errorf("maximum %d scene images allowed", MaxSceneImages)
	}
	return nil
}

// Apply copies the set fields of c onto f.
func (c MovieChanges) Apply(f *MovieFields) {
	if c.Title != nil {
		f.Title = *c.Title
	}
	if c.Description != nil {
		f.Description = *c.Description
	}
	if c.Rating != nil {
		f.Rating = *c.Rating
	}
	if c.ReleaseDate != nil {
		d := *c.ReleaseDate
		f.ReleaseDate = &d
	}
	if c.Duration != nil {
		f.Duration = *c.Duration
	}
	if c.Genre != nil {
		f.Genre = *c.Genre
	}
	if c.Director != nil {
		f.Director = *c.Director
	}
	if c.Cast != nil {
		f.Cast = append([]string(nil), (*c.Cast)...)
	}
	if c.Image != nil {
		f.Image = *c.Image
	}
	if c.SceneImages != nil {
		f.SceneImages = append([]string(nil), (*c.SceneImages)...)
	}
}

func validateRating(r float64) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("rating must be between %v and %v", MinRating, MaxRating)
	}
	return nil
}

// MovieSort selects the ordering of a movie listing.
type MovieSort string

const (
	SortNewest      MovieSort = ""
	SortTitle       MovieSort = "name"
	SortRating      MovieSort = "rating"
	SortReleaseDate MovieSort = "releaseDate"
	SortDuration    MovieSort = "duration"
)

// ParseMovieSort maps the sortBy query value; unknown values fall back to newest first.
func ParseMovieSort(s string) MovieSort {
	switch MovieSort(s) {
	case SortTitle, SortRating, SortReleaseDate, SortDuration:
		return MovieSort(s)
	default:
		return SortNewest
	}
}

// MovieQuery describes a page of movies.
type MovieQuery struct {
	Search string
	Sort   MovieSort
	Desc   bool
	Page   int
	Limit  int
}
