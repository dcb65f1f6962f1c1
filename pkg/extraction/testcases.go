// Package extraction turns free-form model replies into test-case records.
package extraction

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dan-solli/casegen/pkg/testcase"
)

// Defaults carries the requirement-level values applied to every case parsed
// from one reply.
type Defaults struct {
	RequirementID string

	// RequirementTitle, when set, qualifies each case title as
	// "测试-<requirement title>-<case title>".
	RequirementTitle string

	ParentID string

	// Priority is used when a block has no recognizable priority.
	Priority testcase.Priority

	Category  string
	Iteration string
	Assignee  string
}

// block is one candidate test case cut out of a reply.
type block struct {
	index int    // 1-based position among non-empty blocks
	word  string // heading word, used to synthesize a default title
	text  string
}

// Parser extracts test cases from model replies.
type Parser struct {
	logger     *slog.Logger
	parseBlock func(b block, d Defaults) testcase.TestCase
}

// NewParser creates a Parser. A nil logger uses slog.Default().
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, parseBlock: parseBlock}
}

// Parse extracts test cases with a default parser.
func Parse(raw string, d Defaults) []testcase.TestCase {
	return NewParser(nil).Parse(raw, d)
}

// Parse splits raw into case blocks and extracts one TestCase per block.
// Missing fields are left empty. A block that cannot be parsed is skipped
// without affecting its siblings. A reply with no recognizable case heading
// yields an empty slice.
func (p *Parser) Parse(raw string, d Defaults) []testcase.TestCase {
	texts, words := splitBlocks(raw)

	cases := make([]testcase.TestCase, 0, len(texts))
	index := 0
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		index++

		tc, err := p.safeParse(block{index: index, word: words[i], text: text}, d)
		if err != nil {
			p.logger.Warn("skipping unparseable test case block",
				"requirement_id", d.RequirementID,
				"block", index,
				"error", err)
			continue
		}
		cases = append(cases, tc)
	}

	if len(cases) == 0 {
		p.logger.Debug("no test cases recognized in reply",
			"requirement_id", d.RequirementID,
			"reply_length", len(raw))
	}
	return cases
}

func (p *Parser) safeParse(b block, d Defaults) (tc testcase.TestCase, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("block %d: %v", b.index, r)
		}
	}()
	return p.parseBlock(b, d), nil
}

func parseBlock(b block, d Defaults) testcase.TestCase {
	text := trimBlock(b.text)
	bounds := scanLabels(text)
	values := sliceFields(text, bounds)

	title := extractTitle(text, bounds)
	if title == "" {
		title = defaultTitle(b.word, b.index)
	}
	if d.RequirementTitle != "" {
		title = fmt.Sprintf("测试-%s-%s", d.RequirementTitle, title)
	}

	steps := numberSteps(splitSteps(values[fieldSteps]))
	precondition := values[fieldPrecondition]
	expected := values[fieldExpected]

	return testcase.TestCase{
		CaseID:         testcase.CaseID(d.RequirementID, b.index),
		RequirementID:  d.RequirementID,
		ParentID:       d.ParentID,
		Category:       orDefault(d.Category, testcase.DefaultCategory),
		Title:          title,
		Description:    describe(precondition, steps, expected),
		Precondition:   precondition,
		Steps:          steps,
		ExpectedResult: expected,
		Priority:       extractPriority(values[fieldPriority], d.Priority),
		Iteration:      orDefault(d.Iteration, testcase.DefaultIteration),
		Assignee:       d.Assignee,
	}
}

// extractTitle returns the heading remainder: the first line of the block, cut
// at a label if one starts on that line.
func extractTitle(text string, bounds []boundary) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(bounds) > 0 && bounds[0].start < len(line) {
		line = line[:bounds[0].start]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*[]【】"))
}

func defaultTitle(word string, index int) string {
	if word == "测试用例" {
		return fmt.Sprintf("测试用例%d", index)
	}
	return fmt.Sprintf("Test Case %d", index)
}

// extractPriority matches the whole value first, then a leading priority word.
func extractPriority(raw string, fallback testcase.Priority) testcase.Priority {
	if p, ok := testcase.ParsePriority(firstLine(raw)); ok {
		return p
	}
	if m := leadingPriorityRegex.FindStringSubmatch(raw); m != nil {
		return testcase.NormalizePriority(m[1]+m[2], fallback)
	}
	return testcase.NormalizePriority("", fallback)
}

// numberSteps renumbers steps contiguously from 1.
func numberSteps(steps []string) []string {
	numbered := make([]string, len(steps))
	for i, s := range steps {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return numbered
}

func describe(precondition string, steps []string, expected string) string {
	return fmt.Sprintf("**前置条件**：\n%s\n\n**测试步骤**：\n%s\n\n**预期结果**：\n%s",
		precondition, strings.Join(steps, "\n"), expected)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
