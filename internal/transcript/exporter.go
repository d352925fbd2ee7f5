// File: internal/transcript/exporter.go
package transcript

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/conversation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("no conversation data to export")

// SheetName is the worksheet used for XLSX exports.
const SheetName = "Transcript"

const timestampLayout = "20060102_150405"

var extensions = map[string]string{
	"csv":  ".csv",
	"xlsx": ".xlsx",
	"json": ".json",
}

// Exporter writes conversation turns to a timestamped file.
type Exporter struct {
	assistantLabel string
	logger         *zap.Logger
}

func NewExporter(assistantLabel string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{assistantLabel: assistantLabel, logger: logger.Named("transcript")}
}

// FileName derives "<dir>/<base>_<YYYYMMDD_HHMMSS><ext>" from basePath. The
// extension always matches format.
func FileName(basePath, format string, now time.Time) (string, error) {
	ext, ok := extensions[format]
	if !ok {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	expanded, err := homedir.Expand(basePath)
	if err != nil {
		return "", fmt.Errorf("expanding output path: %w", err)
	}
	dir := filepath.Dir(expanded)
	base := strings.TrimSuffix(filepath.Base(expanded), filepath.Ext(expanded))
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, now.Format(timestampLayout), ext)), nil
}

// Export writes turns in format and returns the path written. The output
// directory is created when missing.
func (e *Exporter) Export(turns []conversation.Turn, basePath, format string, now time.Time) (string, error) {
	if len(turns) == 0 {
		e.logger.Warn("No conversation data to export.")
		return "", ErrEmptyTranscript
	}
	format = strings.ToLower(format)
	path, err := FileName(basePath, format, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	switch format {
	case "csv":
		err = e.writeCSV(path, turns)
	case "xlsx":
		err = e.writeXLSX(path, turns)
	case "json":
		err = e.writeJSON(path, turns, now)
	}
	if err != nil {
		return "", fmt.Errorf("exporting %s transcript: %w", format, err)
	}
	e.logger.Info("Conversation exported.", zap.String("path", path), zap.Int("turns", len(turns)))
	return path, nil
}

func (e *Exporter) writeCSV(path string, turns []conversation.Turn) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Role", "Content"}); err != nil {
		return err
	}
	for _, turn := range turns {
		if err := w.Write([]string{turn.Role.Label(e.assistantLabel), turn.Content}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeXLSX(path string, turns []conversation.Turn) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &[]interface{}{"Role", "Content"}); err != nil {
		return err
	}
	for i, turn := range turns {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]interface{}{turn.Role.Label(e.assistantLabel), turn.Content}); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

type jsonTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonTranscript struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Turns       []jsonTurn `json:"turns"`
}

func (e *Exporter) writeJSON(path string, turns []conversation.Turn, now time.Time) error {
	doc := jsonTranscript{GeneratedAt: now, Turns: make([]jsonTurn, 0, len(turns))}
	for _, turn := range turns {
		doc.Turns = append(doc.Turns, jsonTurn{Role: turn.Role.Label(e.assistantLabel), Content: turn.Content})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
