// Package report renders a completed job as a downloadable document.
package report

import (
	"fmt"
	"strings"
	"time"

	"notez-go/internal/actionable"
	"notez-go/internal/types"
)

// Document is the content shared by every export format.
type Document struct {
	JobID        string
	OriginalName string
	DurationSec  float64
	Summary      string
	Transcript   string
	ActionItems  []string
	CreatedAt    time.Time
}

// FromJob builds a Document from a completed job.
func FromJob(job *types.Job) Document {
	return Document{
		JobID:        job.ID,
		OriginalName: job.OriginalName,
		DurationSec:  job.DurationSeconds,
		Summary:      job.Summary,
		Transcript:   job.Transcript,
		ActionItems:  actionable.Extract(job.Summary),
		CreatedAt:    job.CreatedAt,
	}
}

type Exporter interface {
	Format() string
	Export(path string, doc Document) error
}

// ForFormats returns one exporter per requested format.
func ForFormats(formats []string) ([]Exporter, error) {
	var out []Exporter
	for _, f := range formats {
		switch strings.ToLower(f) {
		case "xlsx":
			out = append(out, XLSX{})
		case "docx":
			out = append(out, DOCX{})
		default:
			return nil, fmt.Errorf("unknown report format %q", f)
		}
	}
	return out, nil
}

func formatDuration(sec float64) string {
	return (time.Duration(sec * float64(time.Second))).Round(time.Second).String()
}
