package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// RulesPage is one page of the policy rules collection.
type RulesPage struct {
	Rules []Rule `json:"rules"`
	Total int    `json:"total"`
}

// ParseRulesPage decodes a rules listing response. Individual malformed rules
// degrade to blank rows; only a broken envelope is an error.
func ParseRulesPage(r io.Reader) (RulesPage, error) {
	var page RulesPage
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return RulesPage{}, fmt.Errorf("decode rules page: %w", err)
	}
	return page, nil
}

// LoadRulesPage reads a saved rules listing from disk.
func LoadRulesPage(path string) (RulesPage, error) {
	f, err := os.Open(path)
	if err != nil {
		return RulesPage{}, fmt.Errorf("open rules page: %w", err)
	}
	defer f.Close()
	return ParseRulesPage(f)
}
