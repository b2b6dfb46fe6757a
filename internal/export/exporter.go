// Package export writes correlation table snapshots to disk and, optionally, object storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/ingest/csvlog"
)

// Uploader stores a finished file under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Exporter writes CSV snapshots of a season's tables. Either destination may be disabled: an
// empty dir skips disk, a nil uploader skips object storage.
type Exporter struct {
	dir      string
	uploader Uploader
	logger   *zap.Logger
}

// NewExporter creates an exporter.
func NewExporter(dir string, uploader Uploader, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{dir: dir, uploader: uploader, logger: logger}
}

// Enabled reports whether any destination is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && (e.dir != "" || e.uploader != nil)
}

// CorrelationsName is the file name of a season's correlation table.
func CorrelationsName(season string) string {
	return fmt.Sprintf("correlations_%s.csv", season)
}

// JoinedName is the file name of a season's table joined against prior.
func JoinedName(season, prior string) string {
	return fmt.Sprintf("correlations_%s_vs_%s.csv", season, prior)
}

// ExportCorrelations writes the season table and returns the file name used.
func (e *Exporter) ExportCorrelations(ctx context.Context, season string, recs []analysis.CorrelationRecord) (string, error) {
	var buf bytes.Buffer
	if err := csvlog.WriteCorrelations(&buf, recs); err != nil {
		return "", fmt.Errorf("encoding correlations: %w", err)
	}
	name := CorrelationsName(season)
	return name, e.write(ctx, name, buf.Bytes())
}

// ExportJoined writes the joined table.
func (e *Exporter) ExportJoined(ctx context.Context, season, prior string, recs []analysis.JoinedCorrelationRecord) (string, error) {
	var buf bytes.Buffer
	if err := csvlog.WriteJoined(&buf, prior, recs); err != nil {
		return "", fmt.Errorf("encoding joined correlations: %w", err)
	}
	name := JoinedName(season, prior)
	return name, e.write(ctx, name, buf.Bytes())
}

func (e *Exporter) write(ctx context.Context, name string, body []byte) error {
	if e.dir != "" {
		if err := os.MkdirAll(e.dir, 0o755); err != nil {
			return fmt.Errorf("creating export dir: %w", err)
		}
		path := filepath.Join(e.dir, name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, body, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("renaming %s: %w", tmp, err)
		}
		e.logger.Info("exported table", zap.String("path", path), zap.Int("bytes", len(body)))
	}

	if e.uploader != nil {
		if err := e.uploader.Upload(ctx, name, body, "text/csv"); err != nil {
			return fmt.Errorf("uploading %s: %w", name, err)
		}
		e.logger.Info("uploaded table", zap.String("key", name), zap.Int("bytes", len(body)))
	}
	return nil
}
