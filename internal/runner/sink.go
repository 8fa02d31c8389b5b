package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
)

// LocalSink stores fetched artifacts on the local filesystem under
// <dir>/<agency>/<formID>/<dataID>/.
type LocalSink struct {
	dir string
}

// NewLocalSink creates a LocalSink rooted at dir.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Store writes data and returns the file path.
func (s *LocalSink) Store(_ context.Context, job *domain.Job, data []byte) (string, error) {
	name := "export.pdf"
	if job.JobType == domain.JobTypePhoto && job.MediaName != nil {
		name = sanitizeName(*job.MediaName)
	}

	dir := filepath.Join(
		s.dir,
		strings.ToLower(tenant.Normalize(job.AgencyCode)),
		fmt.Sprintf("%d", job.FormID),
		fmt.Sprintf("%d", job.DataID),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	return path, nil
}

// sanitizeName strips any path components from an upstream media name so it
// cannot escape the artifact directory.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "unnamed"
	}
	return name
}
