// Package csvout writes export rows as CSV. Rows are string maps; the column
// set is either fixed by the caller or computed as the union of keys across
// the batch.
package csvout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// Columns returns the union of row keys: preferred columns first, in their
// given order and only when some row carries them, then every remaining
// column alphabetically.
func Columns(rows []map[string]string, preferred []string) []string {
	present := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}

	cols := make([]string, 0, len(present))
	for _, c := range preferred {
		if present[c] {
			cols = append(cols, c)
			delete(present, c)
		}
	}

	extras := make([]string, 0, len(present))
	for c := range present {
		extras = append(extras, c)
	}
	sort.Strings(extras)

	return append(cols, extras...)
}

// Write creates path, truncating any previous file, and writes the header
// followed by one record per row. Cells for columns a row lacks stay blank.
func Write(path string, header []string, rows []map[string]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(record(header, row)); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// AppendUnique appends rows to path, creating the file with a header when it
// does not exist yet. Rows whose key column value already appears in the
// file, or earlier in the batch, are skipped; rows with a blank key are
// always written since they describe distinct entries with no identity.
func AppendUnique(path string, header []string, rows []map[string]string, keyColumn string) (written, skipped int, err error) {
	seen, exists, err := existingKeys(path, keyColumn)
	if err != nil {
		return 0, 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(header); err != nil {
			f.Close()
			return 0, 0, fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range rows {
		key := row[keyColumn]
		if key != "" {
			if seen[key] {
				skipped++
				continue
			}
			seen[key] = true
		}
		if err := w.Write(record(header, row)); err != nil {
			f.Close()
			return written, skipped, fmt.Errorf("write row: %w", err)
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return written, skipped, fmt.Errorf("flush %s: %w", path, err)
	}
	return written, skipped, f.Close()
}

// existingKeys loads the non-blank key column values of a previous export.
// A missing or empty file reports exists=false so the header gets written.
func existingKeys(path, keyColumn string) (map[string]bool, bool, error) {
	seen := make(map[string]bool)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return seen, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		// Unreadable or empty: start over with a fresh header.
		return seen, false, nil
	}

	keyIdx := -1
	for i, col := range header {
		if col == keyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx == -1 {
		return seen, true, nil
	}

	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if keyIdx < len(rec) && rec[keyIdx] != "" {
			seen[rec[keyIdx]] = true
		}
	}
	return seen, true, nil
}

func record(header []string, row map[string]string) []string {
	rec := make([]string, len(header))
	for i, col := range header {
		rec[i] = row[col]
	}
	return rec
}
