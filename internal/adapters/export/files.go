// Package export writes run artifacts: a CSV of retained measurements, the
// JSON report and an optional SQLite history.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o640
)

// CSVHeader is the column order of the measurements CSV.
var CSVHeader = []string{
	"recording_id", "call_id", "timestamp", "user_onset_ms", "agent_onset_ms",
	"rtt_ms", "confidence", "quality",
}

// WriteCSV writes one row per measurement.
func WriteCSV(w io.Writer, ms []model.TurnMeasurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range ms {
		row := []string{
			m.RecordingID,
			m.CallID,
			m.Timestamp.Format(time.RFC3339),
			strconv.Itoa(m.UserOnsetMS),
			strconv.Itoa(m.AgentOnsetMS),
			strconv.Itoa(m.RTTMS),
			strconv.FormatFloat(m.Confidence, 'f', 4, 64),
			strconv.FormatFloat(m.Quality, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", m.RecordingID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the measurements CSV to path, creating parent directories.
func WriteCSVFile(path string, ms []model.TurnMeasurement) error {
	return writeFile(path, func(w io.Writer) error { return WriteCSV(w, ms) })
}

// WriteReport encodes the report as indented JSON.
func WriteReport(w io.Writer, r *report.Report) error {
	if r == nil {
		return ErrNilReport
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteReportFile writes the JSON report to path, creating parent directories.
func WriteReportFile(path string, r *report.Report) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(w, r) })
}

func writeFile(path string, fill func(io.Writer) error) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), directoryPermission); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermission)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return fill(f)
}
