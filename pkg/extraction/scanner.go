package extraction

import (
	"regexp"
	"strings"
)

// field identifies a bolded label inside a case block.
type field int

const (
	fieldPriority field = iota
	fieldPrecondition
	fieldSteps
	fieldExpected
)

// headingRegex matches a case heading such as "### 测试用例2：" or
// "### Test Case 2:". Group 1 is the heading word, group 2 the number.
var headingRegex = regexp.MustCompile(`(?im)^[ \t]*#{2,4}[ \t]*(测试用例|test[ \t]*case)[ \t]*(\d+)[ \t]*[:：]`)

// labelRegex matches a bolded field label with the colon inside or outside the
// emphasis: "**优先级**：", "**Priority:**", "**Expected Result** :".
var labelRegex = regexp.MustCompile(`(?i)\*\*[ \t]*(优先级|前置条件|测试步骤|预期结果|priority|pre-?conditions?|test[ \t]*steps|steps|expected[ \t]*results?)[ \t]*[:：]?[ \t]*\*\*[ \t]*[:：]?`)

// stepRegex matches a numbered list item at the start of a line.
var stepRegex = regexp.MustCompile(`^\s*\d+\s*[.、)）]\s*(.*)$`)

// bulletRegex matches an unnumbered list item.
var bulletRegex = regexp.MustCompile(`^\s*[-*•]\s+(.*)$`)

// leadingPriorityRegex captures a priority word at the start of a field value,
// e.g. "高（核心流程）" or "High (core flow)". English words must end at a word
// boundary so "Highest" is not read as High.
var leadingPriorityRegex = regexp.MustCompile(`(?i)^[\s*\[【(（]*(?:(nice[ \t]*to[ \t]*have|high|middle|low)\b|(可选|高|中|低))`)

// inlineStepRegex matches the start of a further numbered step on the same
// line: "1. Open app 2. Enter credentials".
var inlineStepRegex = regexp.MustCompile(`\s+\d+[ \t]*(?:\.[ \t]+|、[ \t]*)`)

// sectionRegex matches any markdown heading line. A case block ends at the
// first one, so closing sections like "### 总结" stay out of the last case.
var sectionRegex = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]`)

// ruleRegex matches a markdown horizontal rule and everything after it.
var ruleRegex = regexp.MustCompile(`\n[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*(?:\n[\s\S]*)?$`)

func labelField(name string) field {
	name = strings.ToLower(strings.Join(strings.Fields(name), " "))
	switch {
	case name == "优先级" || name == "priority":
		return fieldPriority
	case name == "前置条件" || strings.HasPrefix(name, "pre"):
		return fieldPrecondition
	case name == "测试步骤" || strings.HasSuffix(name, "steps"):
		return fieldSteps
	default:
		return fieldExpected
	}
}

// boundary is one located label: the label text spans [start, end).
type boundary struct {
	field field
	start int
	end   int
}

// scanLabels locates every label in block, in text order.
func scanLabels(block string) []boundary {
	matches := labelRegex.FindAllStringSubmatchIndex(block, -1)
	bounds := make([]boundary, 0, len(matches))
	for _, m := range matches {
		bounds = append(bounds, boundary{
			field: labelField(block[m[2]:m[3]]),
			start: m[0],
			end:   m[1],
		})
	}
	return bounds
}

// sliceFields cuts block between consecutive boundaries. Each label's value
// runs to the next label of any kind or to the end of the block. When a label
// appears more than once its first occurrence wins.
func sliceFields(block string, bounds []boundary) map[field]string {
	values := make(map[field]string, len(bounds))
	for i, b := range bounds {
		if _, seen := values[b.field]; seen {
			continue
		}
		stop := len(block)
		if i+1 < len(bounds) {
			stop = bounds[i+1].start
		}
		values[b.field] = strings.TrimSpace(block[b.end:stop])
	}
	return values
}

// splitBlocks returns the text following each case heading, up to the next
// heading. Anything before the first heading is conversational preamble and
// is dropped. words holds the matched heading word of each block.
func splitBlocks(raw string) (blocks []string, words []string) {
	matches := headingRegex.FindAllStringSubmatchIndex(raw, -1)
	for i, m := range matches {
		stop := len(raw)
		if i+1 < len(matches) {
			stop = matches[i+1][0]
		}
		blocks = append(blocks, raw[m[1]:stop])
		words = append(words, raw[m[2]:m[3]])
	}
	return blocks, words
}

// splitSteps extracts list items from the steps text. Numbered items are
// preferred; unnumbered bullets are used when no numbered item exists. Lines
// that are not list items continue the previous item.
func splitSteps(text string) []string {
	if steps := collectItems(text, stepRegex); len(steps) > 0 {
		return splitInline(steps)
	}
	return collectItems(text, bulletRegex)
}

// splitInline breaks items holding several numbered steps written on one line.
func splitInline(items []string) []string {
	steps := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range inlineStepRegex.Split(item, -1) {
			if part = strings.TrimSpace(part); part != "" {
				steps = append(steps, part)
			}
		}
	}
	return steps
}

func collectItems(text string, item *regexp.Regexp) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := item.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				steps = append(steps, s)
			}
			continue
		}
		if len(steps) > 0 {
			steps[len(steps)-1] += " " + trimmed
		}
	}
	return steps
}

// trimBlock cuts a block at the next markdown heading and then at a trailing
// horizontal rule. Models separate cases with rules and append closing
// remarks after the last one.
func trimBlock(s string) string {
	if loc := sectionRegex.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.TrimSpace(ruleRegex.ReplaceAllString(s, ""))
}
