// Package file exports and imports record lists as CSV or JSON files.
package file

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/fastygo/todosync/domain"
)

// Result reports what an import read.
type Result struct {
	Records []domain.Record
	Skipped int
}

// SaveCSV writes records to path with a header row.
func SaveCSV(path string, records []domain.Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.CSVHeader); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(rec.CSVFields()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// LoadCSV reads a file written by SaveCSV. Rows that do not decode are skipped.
func LoadCSV(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, domain.StorageError("read csv", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var res Result
	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Skipped++
				continue
			}
			return Result{}, domain.StorageError("read csv", err)
		}
		if first {
			first = false
			if len(fields) > 0 && fields[0] == domain.FieldID {
				continue
			}
		}
		rec, err := domain.DecodeCSVFields(fields)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// SaveJSON writes records as a JSON array of structured objects.
func SaveJSON(path string, records []domain.Record) error {
	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, domain.EncodeMap(rec))
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, payload)
}

// LoadJSON reads a file written by SaveJSON. Objects that do not decode are skipped.
func LoadJSON(path string) (Result, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Result{}, domain.StorageError("read json", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(payload, &items); err != nil {
		return Result{}, domain.WrapError(domain.ErrCodeInvalid, "json file is not a list of records", err)
	}

	var res Result
	for _, item := range items {
		rec, err := domain.DecodeMap(item)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.StorageError("write file", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".todo-*")
	if err != nil {
		return domain.StorageError("write file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.StorageError("write file", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.StorageError("write file", err)
	}
	return domain.StorageError("write file", os.Rename(tmp.Name(), path))
}
