package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for names that are not a plain basename.
var ErrInvalidName = errors.New("invalid artifact name")

// Workspace is the working directory shared by all jobs. Jobs never lock it;
// every artifact name embeds a job id that is unique per upload.
type Workspace struct {
	dir    string
	now    func() time.Time
	suffix func() string
}

// NewWorkspace creates dir if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return &Workspace{
		dir: dir,
		now: time.Now,
		suffix: func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		},
	}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// NewJobID derives a job id from the current time, a random suffix and the
// sanitized original filename, e.g. "1718000000123-9f2c1a7b-team_sync.mp4".
func (w *Workspace) NewJobID(originalName string) string {
	return fmt.Sprintf("%d-%s-%s", w.now().UnixMilli(), w.suffix(), SanitizeName(originalName))
}

// Create writes r into a new file called name. It fails rather than overwrite.
func (w *Workspace) Create(name string, r io.Reader) (string, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

// Resolve maps a basename to its path inside the workspace.
func (w *Workspace) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(w.dir, name), nil
}

// Remove deletes paths, ignoring empty and already missing ones.
func (w *Workspace) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes regular files older than retention and returns how many were deleted.
func (w *Workspace) Sweep(retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read workspace: %w", err)
	}

	cutoff := w.now().Add(-retention)
	cleaned := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(w.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			cleaned++
		}
	}
	return cleaned, errors.Join(errs...)
}

// maxNameLen caps the sanitized name so a job id stays well under the usual
// 255-byte filename limit.
const maxNameLen = 100

// SanitizeName keeps the base name of an upload and replaces anything outside
// [A-Za-z0-9._-] with '_'. Long names are truncated, keeping the extension.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > maxNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		stem := strings.TrimRight(out[:maxNameLen-len(ext)], ".")
		if stem == "" {
			stem = "upload"
		}
		out = stem + ext
	}
	return out
}

// SwapExt replaces the extension of path.
func SwapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
