// Package prompt turns a requirement into the conversation sent to a backend.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/dan-solli/casegen/pkg/llm"
	"github.com/dan-solli/casegen/pkg/testcase"
)

// MinCases is the number of test cases the prompt asks for at minimum.
const MinCases = 3

const (
	systemPrompt       = "你是一位专业的测试工程师，擅长编写详细、全面的测试用例。"
	strictSystemPrompt = systemPrompt + "请严格按照指定格式输出。"
)

// userPromptTemplate asks for the heading and label layout the extraction
// package parses.
const userPromptTemplate = `请根据以下需求生成详细的测试用例：

需求ID: {{.Requirement.ID}}
需求标题: {{.Requirement.Title}}
需求描述: {{.Requirement.Description}}
优先级: {{.Requirement.Priority}}
需求分类: {{.Requirement.Category}}
迭代: {{.Requirement.Iteration}}

请生成至少{{.MinCases}}个测试用例，每个测试用例包括：
1. 测试目标
2. 前置条件
3. 详细的测试步骤
4. 预期结果
5. 优先级（高/中/低）

请严格按照以下格式输出：

### 测试用例1：[测试目标]
**优先级**：[高/中/低]
**前置条件**：[前置条件描述]
**测试步骤**：
1. [步骤1]
2. [步骤2]
...
**预期结果**：[预期结果描述]

### 测试用例2：[测试目标]
...
`

var userTemplate = template.Must(template.New("testcase").Parse(userPromptTemplate))

type templateData struct {
	Requirement testcase.Requirement
	MinCases    int
}

// Builder renders requirement prompts.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder creates a Builder using the built-in template.
func NewBuilder() *Builder {
	return &Builder{tmpl: userTemplate}
}

// Build returns the conversation for req. Backends without system-role support
// receive a single user message with the system instruction prefixed.
func (b *Builder) Build(req testcase.Requirement, caps llm.Capabilities) ([]llm.Message, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, templateData{Requirement: req, MinCases: MinCases}); err != nil {
		return nil, fmt.Errorf("failed to execute prompt template: %w", err)
	}
	user := buf.String()

	system := systemPrompt
	if caps.StrictFormat {
		system = strictSystemPrompt
	}

	if !caps.SystemRole {
		return []llm.Message{
			{Role: llm.RoleUser, Content: system + "\n\n" + user},
		}, nil
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}
