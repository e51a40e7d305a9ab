package report

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/regrada-ai/tracemark/internal/guardrail"
)

type testSuite struct {
	XMLName  xml.Name   `xml:"testsuite"`
	Tests    int        `xml:"tests,attr"`
	Failures int        `xml:"failures,attr"`
	Cases    []testCase `xml:"testcase"`
}

type testCase struct {
	Name    string    `xml:"name,attr"`
	Failure *testFail `xml:"failure,omitempty"`
}

type testFail struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

func WriteJUnit(summary RunSummary, path string) error {
	suite := testSuite{Tests: len(summary.Traces)}
	for _, t := range summary.Traces {
		failures := errorViolations(t)
		if len(failures) > 0 {
			suite.Failures++
			suite.Cases = append(suite.Cases, testCase{
				Name: t.TraceID,
				Failure: &testFail{
					Message: "guardrail violations",
					Body:    strings.Join(failures, "\n"),
				},
			})
			continue
		}
		suite.Cases = append(suite.Cases, testCase{Name: t.TraceID})
	}

	data, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func errorViolations(t TraceSummary) []string {
	var out []string
	for _, v := range t.Violations {
		if v.Severity == guardrail.SeverityError {
			out = append(out, v.RuleID+": "+v.Message)
		}
	}
	return out
}
