package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"id", "title", "description", "status",
	"genres", "themes", "mood", "audience", "warnings",
	"attempts", "retries", "model", "error",
}

// CSVWriter writes one row per record, list fields joined by a separator.
type CSVWriter struct {
	w           *csv.Writer
	sep         string
	wroteHeader bool
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(w io.Writer, sep string) *CSVWriter {
	return &CSVWriter{
		w:   csv.NewWriter(w),
		sep: sep,
	}
}

// Write writes rec as a row, preceded by the header on first use.
func (w *CSVWriter) Write(rec Record) error {
	if err := w.header(); err != nil {
		return err
	}
	if err := w.w.Write(w.row(rec)); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// WriteAll writes multiple records.
func (w *CSVWriter) WriteAll(recs []Record) error {
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the header if nothing was written yet and flushes.
func (w *CSVWriter) Flush() error {
	if err := w.header(); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes the writer.
func (w *CSVWriter) Close() error {
	return w.Flush()
}

func (w *CSVWriter) header() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	return w.w.Write(csvHeader)
}

func (w *CSVWriter) row(rec Record) []string {
	return []string{
		rec.ID,
		rec.Title,
		rec.Description,
		rec.Status,
		strings.Join(rec.Genres, w.sep),
		strings.Join(rec.Themes, w.sep),
		strings.Join(rec.Mood, w.sep),
		rec.Audience,
		strings.Join(rec.Warnings, w.sep),
		strconv.Itoa(rec.Attempts),
		strconv.Itoa(rec.Retries),
		rec.Model,
		rec.Error,
	}
}
