package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moviesite/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetQueue  = "Queue"
	sheetMovies = "Movies"

	// maxRows caps each sheet; the queue table is never pruned automatically.
	maxRows = 10000
)

// Source is what a workbook is built from.
type Source interface {
	ListIntents(ctx context.Context, status models.IntentStatus, limit int) ([]*models.Intent, error)
	ListMovies(ctx context.Context, q models.MovieQuery) ([]*models.Movie, int, error)
}

// Exporter renders the mutation queue and the catalogue into an xlsx workbook.
type Exporter struct {
	source Source
	dir    string
	now    func() time.Time
}

func NewExporter(source Source, dir string) *Exporter {
	return &Exporter{source: source, dir: dir, now: time.Now}
}

// Filter narrows the queue sheet to one status; empty means every intent.
type Filter struct {
	Status models.IntentStatus
}

// Write streams the workbook to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, filter Filter) error {
	f, err := e.build(ctx, filter)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, filter Filter) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, filter)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := "queue"
	if filter.Status != "" {
		name += "_" + string(filter.Status)
	}
	filePath := filepath.Join(e.dir, fmt.Sprintf("%s_%s.xlsx", name, e.now().Format("20060102_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func (e *Exporter) build(ctx context.Context, filter Filter) (*excelize.File, error) {
	intents, err := e.source.ListIntents(ctx, filter.Status, maxRows)
	if err != nil {
		return nil, fmt.Errorf("error getting intents: %w", err)
	}
	movies, _, err := e.source.ListMovies(ctx, models.MovieQuery{Limit: models.MaxPageSize})
	if err != nil {
		return nil, fmt.Errorf("error getting movies: %w", err)
	}

	f := excelize.NewFile()
	if err := writeQueueSheet(f, intents); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeMovieSheet(f, movies); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeQueueSheet(f *excelize.File, intents []*models.Intent) error {
	index, err := f.NewSheet(sheetQueue)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []any{"ID", "Operation", "Status", "Target", "Retries", "Max retries", "Last error", "Created", "Updated", "Processed"}
	if err := writeHeader(f, sheetQueue, headers); err != nil {
		return err
	}

	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	for i, intent := range intents {
		row := i + 2
		values := []any{
			intent.ID,
			string(intent.Operation),
			string(intent.Status),
			targetOf(intent),
			intent.RetryCount,
			intent.MaxRetries,
			intent.ErrorMessage(),
			formatTime(&intent.CreatedAt),
			formatTime(&intent.UpdatedAt),
			formatTime(intent.ProcessedAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetQueue, cell, &values); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}
		if intent.Status == models.IntentFailed {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(sheetQueue, cell, last, failedStyle)
		}
	}

	_ = f.SetColWidth(sheetQueue, "A", "F", 12)
	_ = f.SetColWidth(sheetQueue, "G", "G", 50)
	_ = f.SetColWidth(sheetQueue, "H", "J", 20)
	return nil
}

func writeMovieSheet(f *excelize.File, movies []*models.Movie) error {
	if _, err := f.NewSheet(sheetMovies); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headers := []any{"ID", "Title", "Rating", "Release date", "Duration", "Genre", "Director", "Cast", "Created"}
	if err := writeHeader(f, sheetMovies, headers); err != nil {
		return err
	}

	for i, m := range movies {
		release := ""
		if m.ReleaseDate != nil {
			release = m.ReleaseDate.Format("2006-01-02")
		}
		values := []any{
			m.ID, m.Title, m.Rating, release, m.Duration, m.Genre, m.Director,
			strings.Join(m.Cast, ", "), formatTime(&m.CreatedAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetMovies, cell, &values); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}
	}

	_ = f.SetColWidth(sheetMovies, "B", "B", 35)
	_ = f.SetColWidth(sheetMovies, "H", "H", 40)
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []any) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
	return nil
}

func targetOf(intent *models.Intent) any {
	switch p := intent.Payload.(type) {
	case models.InsertPayload:
		return p.Movie.Title
	case models.UpdatePayload:
		return p.TargetID
	case models.DeletePayload:
		return p.TargetID
	default:
		return ""
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
