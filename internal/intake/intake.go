// Package intake turns an uploaded file into a persisted Job.
package intake

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"notez-go/internal/logger"
	"notez-go/internal/storage"
	"notez-go/internal/types"
)

// Upload is one file as declared by the caller.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Close releases the body if it holds an open file.
func (u Upload) Close() error {
	if c, ok := u.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// typeExts is the extension a source is stored under for each accepted type.
var typeExts = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
}

type Intake struct {
	ws      *storage.Workspace
	allowed map[string]struct{}
	log     *logger.Logger
}

func New(ws *storage.Workspace, allowedTypes []string, log *logger.Logger) *Intake {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Intake{ws: ws, allowed: allowed, log: log.WithComponent("intake")}
}

// FromForm picks the single file sent under field. Callers close the Upload.
func FromForm(form *multipart.Form, field string) (Upload, error) {
	if form == nil {
		return Upload{}, types.NewValidationError("No file uploaded")
	}
	var files []*multipart.FileHeader
	for _, fhs := range form.File {
		files = append(files, fhs...)
	}
	switch {
	case len(files) == 0:
		return Upload{}, types.NewValidationError("No file uploaded")
	case len(files) > 1:
		return Upload{}, types.NewValidationError("Exactly one file is allowed per upload")
	case len(form.File[field]) != 1:
		return Upload{}, types.NewValidationError("File must be sent in the %q field", field)
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return Upload{}, types.NewValidationError("Could not read uploaded file")
	}
	return Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}, nil
}

// Accept validates the upload and stores it in the workspace under a fresh job id.
func (in *Intake) Accept(ctx context.Context, up Upload) (*types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.StageError{Stage: types.StageReceived, Kind: types.ErrCancelled, Err: err}
	}
	if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
		return nil, types.NewValidationError("No file uploaded")
	}
	declared := up.ContentType
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") {
		// Generic clients send no useful type; fall back to the extension.
		declared = typeByExtension(filepath.Ext(up.Filename))
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return nil, types.NewValidationError("Unsupported media type %q", up.ContentType)
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := in.allowed[mediaType]; !ok {
		return nil, types.NewValidationError("Unsupported media type %q", mediaType)
	}

	// The stored name carries the accepted type's extension, never the
	// caller's, so derived artifacts cannot collide with the source.
	id := in.ws.NewJobID(storage.SwapExt(storage.SanitizeName(up.Filename), extensionFor(mediaType)))
	path, err := in.ws.Create(id, up.Body)
	if err != nil {
		return nil, err
	}

	job := types.NewJob(id, up.Filename, path)
	in.log.WithJob(job).WithField("original_name", up.Filename).Info("upload accepted")
	return job, nil
}

// AcceptFile copies a file from disk into the workspace. The media type is
// derived from the extension.
func (in *Intake) AcceptFile(ctx context.Context, path string) (*types.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewValidationError("Could not open %s", filepath.Base(path))
	}
	defer f.Close()

	return in.Accept(ctx, Upload{
		Filename:    filepath.Base(path),
		ContentType: typeByExtension(filepath.Ext(path)),
		Body:        f,
	})
}

func extensionFor(mediaType string) string {
	if ext, ok := typeExts[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".video"
}

func typeByExtension(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
