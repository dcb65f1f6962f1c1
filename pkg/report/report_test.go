package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dan-solli/casegen/pkg/testcase"
)

func cases() []testcase.TestCase {
	return []testcase.TestCase{
		{CaseID: "TC-REQ001-01", RequirementID: "REQ001", Title: "登录<成功>", Steps: []string{"1. 打开"}, Priority: testcase.High},
		{CaseID: "TC-REQ001-02", RequirementID: "REQ001", Priority: testcase.High},
		{CaseID: "TC-REQ002-01", RequirementID: "REQ002", Priority: testcase.Low},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(cases())

	assert.Equal(t, 3, s.TotalCases)
	assert.Equal(t, []PriorityCount{
		{Priority: testcase.High, Count: 2, Percent: "66.7%"},
		{Priority: testcase.Middle, Count: 0, Percent: "0.0%"},
		{Priority: testcase.Low, Count: 1, Percent: "33.3%"},
		{Priority: testcase.NiceToHave, Count: 0, Percent: "0.0%"},
	}, s.Priorities)

	require.Len(t, s.Coverage, 2)
	assert.Equal(t, "REQ001", s.Coverage[0].RequirementID)
	assert.Equal(t, 2, s.Coverage[0].Total)
	assert.Equal(t, 2, s.Coverage[0].ByPriority[testcase.High])
	assert.Equal(t, "REQ002", s.Coverage[1].RequirementID)
	assert.Equal(t, 1, s.Coverage[1].ByPriority[testcase.Low])
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.Zero(t, s.TotalCases)
	assert.Empty(t, s.Coverage)
	for _, p := range s.Priorities {
		assert.Equal(t, "0%", p.Percent)
	}
}

func TestWriteTestCases_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "cases.json")

	require.NoError(t, WriteTestCases(path, cases()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "登录<成功>", "text is written verbatim")

	var got []testcase.TestCase
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, cases()[0].CaseID, got[0].CaseID)
	assert.Len(t, got, 3)
}

func TestWriteTestCases_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.yaml")

	require.NoError(t, WriteTestCases(path, cases()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []testcase.TestCase
	require.NoError(t, yaml.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, testcase.High, got[0].Priority)
	assert.Equal(t, []string{"1. 打开"}, got[0].Steps)
}

func TestWriteTestCases_EmptyIsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")

	require.NoError(t, WriteTestCases(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWriteSummary_UnsupportedFormat(t *testing.T) {
	err := WriteSummary(filepath.Join(t.TempDir(), "report.xlsx"), Summarize(cases()))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteSummary_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	s := Summarize(cases())
	s.RunID = "run-1"

	require.NoError(t, WriteSummary(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Summary
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 3, got.TotalCases)
	assert.Equal(t, "66.7%", got.Priorities[0].Percent)
}
