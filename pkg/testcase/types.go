// Package testcase defines the requirement and test-case records exchanged between
// the reader, the generator and the result sinks.
package testcase

import "fmt"

// Defaults applied to requirement fields the document reader left empty.
const (
	DefaultCategory  = "测试需求"
	DefaultIteration = "迭代27"
	DefaultPriority  = "中"
)

// Requirement is one human-written requirement record. It is produced by a reader
// and never modified by the generator.
type Requirement struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
	ParentID    string `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Iteration   string `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Assignee    string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
}

// WithDefaults returns a copy of r with missing optional fields filled in.
// index is the 0-based position of the requirement in its source document and
// is used to synthesize an ID of the form REQ001.
func (r Requirement) WithDefaults(index int) Requirement {
	if r.ID == "" {
		r.ID = fmt.Sprintf("REQ%03d", index+1)
	}
	if r.Priority == "" {
		r.Priority = DefaultPriority
	}
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	if r.Iteration == "" {
		r.Iteration = DefaultIteration
	}
	return r
}

// TestCase is a structured test case extracted from a model reply.
type TestCase struct {
	CaseID         string   `json:"caseId" yaml:"caseId"`
	RequirementID  string   `json:"requirementId" yaml:"requirementId"`
	ParentID       string   `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Category       string   `json:"category" yaml:"category"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	Precondition   string   `json:"precondition,omitempty" yaml:"precondition,omitempty"`
	Steps          []string `json:"steps" yaml:"steps"`
	ExpectedResult string   `json:"expectedResult" yaml:"expectedResult"`
	Priority       Priority `json:"priority" yaml:"priority"`
	Iteration      string   `json:"iteration" yaml:"iteration"`
	Assignee       string   `json:"assignee" yaml:"assignee"`
}

// CaseID builds the identifier of the index-th (1-based) case of a requirement.
func CaseID(requirementID string, index int) string {
	return fmt.Sprintf("TC-%s-%02d", requirementID, index)
}
