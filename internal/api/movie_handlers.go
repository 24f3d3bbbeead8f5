package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moviesite/internal/models"
)

// movieRequest is the accepted body for add and update. Fields left out are not changed.
type movieRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Rating      *float64  `json:"rating"`
	ReleaseDate *string   `json:"releaseDate"`
	Duration    *int      `json:"duration"`
	Genre       *string   `json:"genre"`
	Director    *string   `json:"director"`
	Cast        *[]string `json:"cast"`
	Image       *string   `json:"image"`
	SceneImages *[]string `json:"sceneImages"`

	uploads movieUploads
}

// movieUploads holds multipart files until the text fields have been validated.
type movieUploads struct {
	image  *multipart.FileHeader
	scenes []*multipart.FileHeader
}

func (u movieUploads) empty() bool {
	return u.image == nil && len(u.scenes) == 0
}

func (s *HTTPServer) handleListMovies(w http.ResponseWriter, r *http.Request) {
	s.listMovies(w, r, models.MovieQuery{})
}

func (s *HTTPServer) handleSortedMovies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	s.listMovies(w, r, models.MovieQuery{
		Sort: models.ParseMovieSort(query.Get("sortBy")),
		Desc: strings.EqualFold(query.Get("order"), "desc"),
	})
}

func (s *HTTPServer) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	q := models.MovieQuery{
		Search: r.URL.Query().Get("query"),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	}
	movies, page, err := s.deps.Movies.Search(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writePage(w, movies, page)
}

func (s *HTTPServer) listMovies(w http.ResponseWriter, r *http.Request, q models.MovieQuery) {
	q.Page = queryInt(r, "page")
	q.Limit = queryInt(r, "limit")

	movies, page, err := s.deps.Movies.List(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writePage(w, movies, page)
}

func (s *HTTPServer) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	movie, err := s.deps.Movies.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, movie)
}

func (s *HTTPServer) handleAddMovie(w http.ResponseWriter, r *http.Request) {
	req, err := s.readMovieRequest(w, r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields, err := req.fields()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := fields.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.uploads.empty() {
		if err := s.storeUploads(r, req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if fields, err = req.fields(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if user := currentUser(r); user != nil {
		fields.CreatedBy = &user.ID
	}

	intentID, err := s.deps.Movies.Create(r.Context(), fields)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeAccepted(w, http.StatusCreated, "movie accepted", intentID)
}

func (s *HTTPServer) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	req, err := s.readMovieRequest(w, r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	changes, err := req.changes()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := changes.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.uploads.empty() {
		if _, err := s.deps.Movies.Get(r.Context(), id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if err := s.storeUploads(r, req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if changes, err = req.changes(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	intentID, err := s.deps.Movies.Update(r.Context(), id, changes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeAccepted(w, http.StatusOK, "movie update accepted", intentID)
}

func (s *HTTPServer) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	intentID, err := s.deps.Movies.Delete(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeAccepted(w, http.StatusOK, "movie deletion accepted", intentID)
}

// readMovieRequest accepts JSON or a multipart form with uploaded images.
// requireImage makes the "image" file mandatory for multipart requests.
func (s *HTTPServer) readMovieRequest(w http.ResponseWriter, r *http.Request, requireImage bool) (*movieRequest, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req movieRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if req.SceneImages != nil && len(*req.SceneImages) > models.MaxSceneImages {
			return nil, fmt.Errorf("maximum %d scene images allowed", models.MaxSceneImages)
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.HTTP.MaxUploadBytes); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	req, err := movieRequestFromForm(r.MultipartForm)
	if err != nil {
		return nil, err
	}

	files := r.MultipartForm.File
	if len(files["sceneImages"]) > models.MaxSceneImages {
		return nil, fmt.Errorf("maximum %d scene images allowed", models.MaxSceneImages)
	}

	if image := files["image"]; len(image) > 0 {
		req.uploads.image = image[0]
	} else if requireImage {
		return nil, errors.New("image file is required")
	}
	req.uploads.scenes = files["sceneImages"]
	return req, nil
}

// storeUploads saves the pending multipart files and points the request at their URLs.
func (s *HTTPServer) storeUploads(r *http.Request, req *movieRequest) error {
	if fh := req.uploads.image; fh != nil {
		url, err := s.saveUpload(r, fh)
		if err != nil {
			return err
		}
		req.Image = &url
	}

	if scenes := req.uploads.scenes; len(scenes) > 0 {
		urls := make([]string, 0, len(scenes))
		for _, fh := range scenes {
			url, err := s.saveUpload(r, fh)
			if err != nil {
				return err
			}
			urls = append(urls, url)
		}
		req.SceneImages = &urls
	}
	return nil
}

func (s *HTTPServer) saveUpload(r *http.Request, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}

	url, err := s.deps.Movies.SaveImage(r.Context(), data, fh.Filename)
	if err != nil {
		return "", fmt.Errorf("%s: %w", fh.Filename, err)
	}
	return url, nil
}

func movieRequestFromForm(form *multipart.Form) (*movieRequest, error) {
	var req movieRequest
	value := func(name string) (string, bool) {
		v, ok := form.Value[name]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}
	text := func(name string) *string {
		if v, ok := value(name); ok {
			return &v
		}
		return nil
	}

	req.Title = text("title")
	req.Description = text("description")
	req.Genre = text("genre")
	req.Director = text("director")
	req.ReleaseDate = text("releaseDate")

	if v, ok := value("rating"); ok && v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.New("rating must be a number")
		}
		req.Rating = &rating
	}
	if v, ok := value("duration"); ok && v != "" {
		duration, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("duration must be a whole number of minutes")
		}
		req.Duration = &duration
	}
	if values, ok := form.Value["cast"]; ok {
		cast := parseCast(values)
		req.Cast = &cast
	}
	return &req, nil
}

// parseCast accepts a JSON array, a comma-separated list or repeated form fields.
func parseCast(values []string) []string {
	if len(values) == 1 {
		var list []string
		if err := json.Unmarshal([]byte(values[0]), &list); err == nil {
			return list
		}
		values = strings.Split(values[0], ",")
	}
	cast := make([]string, 0, len(values))
	for _, v := range values {
		if name := strings.TrimSpace(v); name != "" {
			cast = append(cast, name)
		}
	}
	return cast
}

func parseReleaseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("releaseDate must be YYYY-MM-DD")
}

func (req *movieRequest) fields() (models.MovieFields, error) {
	var fields models.MovieFields
	changes, err := req.changes()
	if err != nil {
		return fields, err
	}
	changes.Apply(&fields)
	return fields, nil
}

func (req *movieRequest) changes() (models.MovieChanges, error) {
	changes := models.MovieChanges{
		Title:       req.Title,
		Description: req.Description,
		Rating:      req.Rating,
		Duration:    req.Duration,
		Genre:       req.Genre,
		Director:    req.Director,
		Cast:        req.Cast,
		Image:       req.Image,
		SceneImages: req.SceneImages,
	}
	if req.ReleaseDate != nil {
		date, err := parseReleaseDate(*req.ReleaseDate)
		if err != nil {
			return changes, err
		}
		changes.ReleaseDate = date
	}
	return changes, nil
}
