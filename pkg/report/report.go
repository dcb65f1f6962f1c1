// Package report writes generated test cases and their summary report.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dan-solli/casegen/pkg/testcase"
)

// ErrUnsupportedFormat is returned for output extensions other than .yaml,
// .yml and .json.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// PriorityCount is the number and share of cases with one priority.
type PriorityCount struct {
	Priority testcase.Priority `json:"priority" yaml:"priority"`
	Count    int               `json:"count" yaml:"count"`
	// Percent is formatted with one decimal, e.g. "33.3%".
	Percent string `json:"percent" yaml:"percent"`
}

// Coverage is the per-requirement case breakdown.
type Coverage struct {
	RequirementID string                    `json:"requirementId" yaml:"requirementId"`
	Total         int                       `json:"total" yaml:"total"`
	ByPriority    map[testcase.Priority]int `json:"byPriority" yaml:"byPriority"`
}

// Summary is the end-of-run report.
type Summary struct {
	RunID       string          `json:"runId,omitempty" yaml:"runId,omitempty"`
	Backend     string          `json:"backend,omitempty" yaml:"backend,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt" yaml:"generatedAt"`
	Succeeded   int             `json:"succeeded" yaml:"succeeded"`
	Skipped     int             `json:"skipped" yaml:"skipped"`
	Unchanged   int             `json:"unchanged" yaml:"unchanged"`
	TotalTokens int64           `json:"totalTokens" yaml:"totalTokens"`
	TotalCases  int             `json:"totalCases" yaml:"totalCases"`
	Priorities  []PriorityCount `json:"priorities" yaml:"priorities"`
	Coverage    []Coverage      `json:"coverage" yaml:"coverage"`
}

// Summarize counts cases per priority and per requirement. Coverage keeps the
// order in which requirements first appear in cases.
func Summarize(cases []testcase.TestCase) Summary {
	s := Summary{
		GeneratedAt: time.Now().UTC(),
		TotalCases:  len(cases),
		Coverage:    []Coverage{},
	}

	counts := make(map[testcase.Priority]int, len(testcase.Priorities))
	index := make(map[string]int)
	for _, tc := range cases {
		counts[tc.Priority]++

		i, ok := index[tc.RequirementID]
		if !ok {
			i = len(s.Coverage)
			index[tc.RequirementID] = i
			s.Coverage = append(s.Coverage, Coverage{
				RequirementID: tc.RequirementID,
				ByPriority:    make(map[testcase.Priority]int, len(testcase.Priorities)),
			})
		}
		s.Coverage[i].Total++
		s.Coverage[i].ByPriority[tc.Priority]++
	}

	for _, p := range testcase.Priorities {
		s.Priorities = append(s.Priorities, PriorityCount{
			Priority: p,
			Count:    counts[p],
			Percent:  percent(counts[p], len(cases)),
		})
	}
	return s
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

// WriteTestCases writes cases to path as YAML or JSON, chosen by extension.
// Parent directories are created as needed.
func WriteTestCases(path string, cases []testcase.TestCase) error {
	if cases == nil {
		cases = []testcase.TestCase{}
	}
	return write(path, cases)
}

// WriteSummary writes s to path as YAML or JSON, chosen by extension.
func WriteSummary(path string, s Summary) error {
	return write(path, s)
}

func write(path string, v any) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if ext == ".json" {
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
	} else {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", path, err)
		}
	}

	return f.Close()
}
