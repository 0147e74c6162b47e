// Package export drives the CSV export pipelines against the custody
// platform API: policy rules, transaction history, and vault addresses. Each
// pipeline fetches every page of its listing, flattens the records into
// string rows, applies an optional row filter, and writes the result through
// csvout. Pipelines can also run offline from a local JSON dump of a listing
// response.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fystack/custody-export/filter"
)

// pageFetch retrieves one page and reports whether it was the last.
type pageFetch func(ctx context.Context, page, size int) (done bool, err error)

// fetchAllPages walks pages starting at 1 until fetch reports done or fails.
func fetchAllPages(ctx context.Context, size int, fetch pageFetch) error {
	for page := 1; ; page++ {
		done, err := fetch(ctx, page, size)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// lenient decodes data into out, resetting out to its zero value when the
// payload does not match the expected shape. Listing elements degrade to
// blank cells instead of failing the run.
func lenient[T any](data []byte, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		var zero T
		*out = zero
	}
	return nil
}

// loadDump decodes a listing response saved to a local JSON file.
func loadDump[T any](path, what string) (T, error) {
	var out T
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s dump: %w", what, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s dump: %w", what, err)
	}
	return out, nil
}

// rowEnv exposes a CSV row to filter expressions: every column under its own
// name, plus the whole row as "row" for columns whose names are not valid
// identifiers.
func rowEnv(row map[string]string) map[string]any {
	env := make(map[string]any, len(row)+1)
	for k, v := range row {
		env[k] = v
	}
	env["row"] = row
	return env
}

// selectRows keeps the rows the engine includes. A nil engine keeps all rows.
func selectRows(rows []map[string]string, eng *filter.Engine) []map[string]string {
	if eng == nil {
		return rows
	}
	var kept []map[string]string
	for _, row := range rows {
		if eng.Includes(rowEnv(row)) {
			kept = append(kept, row)
		}
	}
	return kept
}
