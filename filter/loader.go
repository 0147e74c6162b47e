package filter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSONDocument decodes a filter document from JSON. Filter documents are
// operator-authored, so unknown fields are rejected rather than ignored.
func ParseJSONDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode filter document: %w", err)
	}
	return doc, nil
}

// ParseYAMLDocument decodes a filter document from YAML.
func ParseYAMLDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode filter document: %w", err)
	}
	return doc, nil
}

// LoadDocument reads a filter document from disk, picking the format from
// the file extension. Anything that is not .yaml or .yml parses as JSON.
func LoadDocument(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open filter document: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAMLDocument(f)
	default:
		return ParseJSONDocument(f)
	}
}

// CompileFile loads and compiles a filter document in one step.
func CompileFile(path string, opts ...EngineOption) (*Engine, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return CompileDocument(doc, opts...)
}
