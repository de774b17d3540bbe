// Package report writes flat CSV reports.
//
// Every graphadm subcommand ends by reshaping Graph records into rows and
// handing them here. The writer flushes periodically so a long run that is
// interrupted still leaves usable output behind.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// Row status values for per-item mutation reports.
const (
	StatusSuccess = "Success"
	StatusError   = "Error"
)

// flushEvery is the row interval between flushes.
const flushEvery = 10

// flushAfter forces a flush when this much time passed since the last one.
const flushAfter = 5 * time.Second

// Writer appends rows to a CSV file.
type Writer struct {
	file      *os.File
	w         *csv.Writer
	rows      int
	lastFlush time.Time
}

// NewWriter creates path (truncating an existing file) and writes the header.
func NewWriter(path string, header []string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}

	w := &Writer{
		file:      file,
		w:         csv.NewWriter(file),
		lastFlush: time.Now(),
	}
	if err := w.w.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.w.Flush()
	return w, nil
}

// Write appends one row, flushing every few rows or seconds.
func (w *Writer) Write(row []string) error {
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.rows++
	if w.rows%flushEvery == 0 || time.Since(w.lastFlush) > flushAfter {
		w.w.Flush()
		w.lastFlush = time.Now()
	}
	return w.w.Error()
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// DefaultPath names a report file for the given report in the working
// directory: graphadm_<name>_<date>.csv.
func DefaultPath(name string) string {
	return fmt.Sprintf("graphadm_%s_%s.csv", name, time.Now().Format("2006-01-02"))
}

// ErrorStatus formats a failure for a status column.
func ErrorStatus(err error) string {
	return fmt.Sprintf("%s: %v", StatusError, err)
}
