package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/moduleforge/builder/internal/report"
)

// harnessReportFile is the fixed path, relative to the workspace, the
// emitted test suite's runner writes its outcomes to. The generated test
// suite's entrypoint script is expected to invoke the adapter's capability
// suites and serialize a harnessReport here before exiting, regardless of
// its own exit code.
const harnessReportFile = ".builder-test-report.json"

// harnessReport is the wire contract between an emitted test suite and the
// Sandbox Runner. It is deliberately small: one outcome per test id, plus
// per-capability pass/fail so VALIDATE can apply the hard-gate rule.
type harnessReport struct {
	Tests []harnessTestResult `json:"tests"`
}

type harnessTestResult struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Passed     bool   `json:"passed"`
	Message    string `json:"message,omitempty"`
	Path       string `json:"path,omitempty"`
	Line       int    `json:"line,omitempty"`
}

// readHarnessReport loads and translates the test suite's own report into
// the Builder's Report union. A missing file (e.g. the suite crashed before
// writing it) is not an error here — the caller folds the container's exit
// code and captured stderr into a RUNTIME finding in that case.
func readHarnessReport(workspaceHost string) (report.Report, bool) {
	data, err := os.ReadFile(filepath.Join(workspaceHost, harnessReportFile))
	if err != nil {
		return report.Report{}, false
	}
	var hr harnessReport
	if err := json.Unmarshal(data, &hr); err != nil {
		return report.Report{}, false
	}

	out := report.Report{CapabilitySuiteResults: map[string]bool{}}
	for _, t := range hr.Tests {
		if t.Passed {
			if t.Capability != "" {
				if _, ok := out.CapabilitySuiteResults[t.Capability]; !ok {
					out.CapabilitySuiteResults[t.Capability] = true
				}
			}
			continue
		}
		if t.Capability != "" {
			out.CapabilitySuiteResults[t.Capability] = false
		}
		var loc *report.Location
		if t.Path != "" {
			loc = &report.Location{Path: t.Path, Line: t.Line}
		}
		out.Findings = append(out.Findings, report.Finding{
			Severity: report.SeverityError,
			Kind:     report.KindTestFailure,
			Message:  t.Message,
			Location: loc,
			TestID:   t.ID,
		})
	}
	out.Sort()
	return out, true
}
