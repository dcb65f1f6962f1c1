// Package reader loads requirement documents.
package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dan-solli/casegen/pkg/testcase"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .yaml, .yml and .json.
	ErrUnsupportedFormat = errors.New("unsupported requirements format")

	// ErrMissingField is returned when a record lacks a title or description.
	ErrMissingField = errors.New("requirement is missing a required field")
)

// fieldAliases lists the accepted keys of each requirement field. The Chinese
// names match the column headers of existing requirement spreadsheets.
var fieldAliases = map[string][]string{
	"id":          {"id", "需求ID"},
	"title":       {"title", "标题"},
	"description": {"description", "详细描述"},
	"priority":    {"priority", "优先级"},
	"parentId":    {"parentId", "parent_id", "父需求"},
	"category":    {"category", "需求分类"},
	"iteration":   {"iteration", "迭代"},
	"assignee":    {"assignee", "处理人"},
}

// document is the accepted top-level shape besides a bare list.
type document struct {
	Requirements []map[string]any `yaml:"requirements" json:"requirements"`
}

// Load reads requirements from a YAML or JSON file chosen by extension.
func Load(path string) ([]testcase.Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Decode(bytes.NewReader(data), "yaml")
	case ".json":
		return Decode(bytes.NewReader(data), "json")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Decode parses requirements in the given format ("yaml" or "json"). The input
// is either a list of records or an object with a "requirements" list. Missing
// optional fields are defaulted: IDs become REQ001, REQ002, ... by position.
func Decode(r io.Reader, format string) ([]testcase.Requirement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements: %w", err)
	}

	records, err := decodeRecords(data, format)
	if err != nil {
		return nil, err
	}

	reqs := make([]testcase.Requirement, 0, len(records))
	for i, rec := range records {
		req := testcase.Requirement{
			ID:          field(rec, "id"),
			Title:       field(rec, "title"),
			Description: field(rec, "description"),
			Priority:    field(rec, "priority"),
			ParentID:    field(rec, "parentId"),
			Category:    field(rec, "category"),
			Iteration:   field(rec, "iteration"),
			Assignee:    field(rec, "assignee"),
		}
		if req.Title == "" {
			return nil, fmt.Errorf("%w: record %d has no title", ErrMissingField, i+1)
		}
		if req.Description == "" {
			return nil, fmt.Errorf("%w: record %d (%s) has no description", ErrMissingField, i+1, req.Title)
		}
		reqs = append(reqs, req.WithDefaults(i))
	}
	return reqs, nil
}

func decodeRecords(data []byte, format string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var (
		records []map[string]any
		doc     document
	)
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(trimmed, &records); err == nil {
			return records, nil
		}
		if err := yaml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML requirements: %w", err)
		}
	case "json":
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &records); err != nil {
				return nil, fmt.Errorf("failed to parse JSON requirements: %w", err)
			}
			return records, nil
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON requirements: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return doc.Requirements, nil
}

// field returns the first non-empty alias value of name, as trimmed text.
func field(rec map[string]any, name string) string {
	for _, key := range fieldAliases[name] {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			// JSON numbers; integral IDs should not print as 1e+06
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
