// File: internal/artifacts/screenshot.go
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// ScreenshotRecorder saves diagnostic screenshots of failed login attempts.
type ScreenshotRecorder struct {
	page   browser.Page
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewScreenshotRecorder writes into dir ("~" is expanded; empty means the working directory).
func NewScreenshotRecorder(page browser.Page, dir string, logger *zap.Logger) *ScreenshotRecorder {
	if dir == "" {
		dir = "."
	}
	if expanded, err := homedir.Expand(dir); err == nil {
		dir = expanded
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScreenshotRecorder{page: page, dir: dir, logger: logger.Named("artifacts"), now: time.Now}
}

// FileName returns the artifact name for attempt at t.
func FileName(attempt int, t time.Time) string {
	return fmt.Sprintf("login_error_attempt%d_%d.png", attempt, t.Unix())
}

// Capture grabs the viewport and returns the written path.
func (r *ScreenshotRecorder) Capture(ctx context.Context, attempt int) (string, error) {
	buf, err := r.page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for screenshot: %w", err)
	}

	path := filepath.Join(r.dir, FileName(attempt, r.now()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot to file: %w", err)
	}
	r.logger.Info("Saved screenshot.", zap.String("path", path), zap.Int("attempt", attempt))
	return path, nil
}
