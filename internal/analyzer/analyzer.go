// Package analyzer is the Static Analyzer: it parses generated adapter
// source text, builds the import graph and call-site list, and applies
// internal/policy to produce a structured, deterministically ordered list
// of findings. It never executes the code it analyzes.
package analyzer

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/moduleforge/builder/internal/bundle"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

// importEvaluator is compiled once and reused for every file in every
// bundle the process ever analyzes, per policy.RegoEvaluator's own
// once-per-process contract.
var (
	regoOnce sync.Once
	regoEval *policy.RegoEvaluator
	regoErr  error
)

func importEvaluator() (*policy.RegoEvaluator, error) {
	regoOnce.Do(func() {
		regoEval, regoErr = policy.NewRegoEvaluator(context.Background())
	})
	return regoEval, regoErr
}

// evaluateImport is the import-policy decision the analyzer enforces: OPA
// evaluating importPolicyModule, not the Go-native IsAllowedImport (which
// remains only as policy_test.go's cross-check of the Rego module). A
// policy-engine error fails closed — an import is rejected, not silently
// allowed, if the evaluator cannot render a decision.
func evaluateImport(name string, profile policy.Profile) (bool, error) {
	evaluator, err := importEvaluator()
	if err != nil {
		return false, err
	}
	return evaluator.AllowImport(context.Background(), name, profile)
}

var (
	importRe    = regexp.MustCompile(`^\s*import\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	fromImportRe = regexp.MustCompile(`^\s*from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import\b`)
	classDefRe  = regexp.MustCompile(`^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(([^)]*)\))?\s*:`)
	decoratorRe = regexp.MustCompile(`^\s*@([A-Za-z_][A-Za-z0-9_.]*)`)
	methodDefRe = regexp.MustCompile(`^\s*def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)`)
)

// RequiredDecorator is the registration decorator every adapter class must
// carry, per spec §4.2.
const RequiredDecorator = "register_adapter"

// requiredMethod describes one method the adapter contract mandates.
type requiredMethod struct {
	name  string
	arity int // parameter count excluding "self"
}

var requiredMethods = []requiredMethod{
	{name: "fetch_raw", arity: 0},
	{name: "transform", arity: 1},
	{name: "get_schema", arity: 0},
}

// Analyze runs static analysis over every file in the bundle and returns a
// stably sorted report.Report. profile supplies the allowed import prefixes
// beyond the policy baseline.
func Analyze(files bundle.Bundle, profile policy.Profile) report.Report {
	var r report.Report
	for _, f := range files.Entries() {
		if !strings.HasSuffix(f.Path, ".py") {
			continue
		}
		r.Findings = append(r.Findings, analyzeFile(f.Path, string(f.Content), profile)...)
	}
	r.Sort()
	return r
}

func analyzeFile(path, content string, profile policy.Profile) []report.Finding {
	var findings []report.Finding
	lines := strings.Split(content, "\n")

	if policy.HasForbiddenPathChar(path) {
		findings = append(findings, report.Finding{
			Severity: report.SeverityFatal,
			Kind:     report.KindPolicyViolation,
			Message:  fmt.Sprintf("path %q contains a forbidden character", path),
			Location: &report.Location{Path: path, Line: 1},
		})
	}

	hasClass := false
	decoratorSeen := ""
	methodsFound := map[string]int{}

	pendingDecorators := []string{}

	for i, line := range lines {
		lineNo := i + 1

		if name, ok := matchImport(line); ok {
			allowed, err := evaluateImport(name, profile)
			if err != nil || !allowed {
				msg := fmt.Sprintf("import %q is not permitted by policy", name)
				if err != nil {
					msg = fmt.Sprintf("import %q rejected: policy engine error: %v", name, err)
				}
				findings = append(findings, report.Finding{
					Severity: report.SeverityError,
					Kind:     report.KindImportPolicy,
					Message:  msg,
					Location: &report.Location{Path: path, Line: lineNo},
					FixHint: &report.FixHint{
						Signature:  "import_policy:" + name,
						Description: fmt.Sprintf("remove or replace the forbidden import %q", name),
					},
				})
			}
		}

		if pattern, ok := policy.IsForbiddenCallPattern(line); ok {
			findings = append(findings, report.Finding{
				Severity: report.SeverityError,
				Kind:     report.KindPolicyViolation,
				Message:  fmt.Sprintf("forbidden call pattern %q", pattern),
				Location: &report.Location{Path: path, Line: lineNo, Column: strings.Index(line, pattern) + 1},
			})
		}

		if m := decoratorRe.FindStringSubmatch(line); m != nil {
			pendingDecorators = append(pendingDecorators, m[1])
			continue
		}

		if m := classDefRe.FindStringSubmatch(line); m != nil {
			hasClass = true
			for _, d := range pendingDecorators {
				if d == RequiredDecorator || strings.HasSuffix(d, "."+RequiredDecorator) {
					decoratorSeen = d
				}
			}
			pendingDecorators = nil
			continue
		}
		pendingDecorators = nil

		if m := methodDefRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			params := splitParams(m[2])
			arity := params
			if arity > 0 {
				arity-- // exclude self
			}
			methodsFound[name] = arity
		}
	}

	if hasClass && decoratorSeen == "" {
		findings = append(findings, report.Finding{
			Severity: report.SeverityError,
			Kind:     report.KindContractBadDecorator,
			Message:  fmt.Sprintf("adapter class in %s is missing @%s", path, RequiredDecorator),
			Location: &report.Location{Path: path, Line: 1},
			FixHint: &report.FixHint{
				Signature:   "bad_decorator:" + path,
				Description: fmt.Sprintf("add @%s above the adapter class definition", RequiredDecorator),
			},
		})
	}

	if hasClass {
		for _, req := range requiredMethods {
			arity, found := methodsFound[req.name]
			switch {
			case !found:
				findings = append(findings, report.Finding{
					Severity: report.SeverityError,
					Kind:     report.KindContractMissingMethod,
					Message:  fmt.Sprintf("adapter in %s is missing required method %s", path, req.name),
					Location: &report.Location{Path: path, Line: 1},
					FixHint: &report.FixHint{
						Signature:   "missing_method:" + req.name,
						Description: fmt.Sprintf("implement %s with %d argument(s)", req.name, req.arity),
					},
				})
			case arity != req.arity:
				findings = append(findings, report.Finding{
					Severity: report.SeverityError,
					Kind:     report.KindContractMissingMethod,
					Message:  fmt.Sprintf("%s in %s has wrong arity: got %d, want %d", req.name, path, arity, req.arity),
					Location: &report.Location{Path: path, Line: 1},
					FixHint: &report.FixHint{
						Signature:   "missing_method:" + req.name,
						Description: fmt.Sprintf("%s must take exactly %d argument(s) besides self", req.name, req.arity),
					},
				})
			}
		}
	}

	if syntaxErr := detectObviousSyntaxError(content); syntaxErr != nil {
		findings = append(findings, report.Finding{
			Severity: report.SeverityFatal,
			Kind:     report.KindSyntax,
			Message:  syntaxErr.message,
			Location: &report.Location{Path: path, Line: syntaxErr.line, Column: syntaxErr.column},
		})
	}

	return findings
}

func matchImport(line string) (string, bool) {
	if m := importRe.FindStringSubmatch(line); m != nil {
		return strings.SplitN(m[1], " as ", 2)[0], true
	}
	if m := fromImportRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

func splitParams(params string) int {
	params = strings.TrimSpace(params)
	if params == "" {
		return 0
	}
	depth := 0
	count := 1
	for _, r := range params {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				count++
			}
		}
	}
	return count
}

type syntaxError struct {
	message string
	line    int
	column  int
}

// detectObviousSyntaxError runs a bracket/quote-balance scan. This is not a
// full Python parser — the analyzer's contract is to flag source text that
// cannot possibly be valid, not to validate full grammar (the sandbox's
// interpreter is the authority on true syntax validity). A SYNTAX finding
// is retryable, not terminal, so it does not stop the sandbox from running;
// it gives the repair prompt a located error.
func detectObviousSyntaxError(content string) *syntaxError {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	inString := rune(0)
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for col, r := range line {
			if inString != 0 {
				if r == inString {
					inString = 0
				}
				continue
			}
			switch r {
			case '\'', '"':
				inString = r
			case '(', '[', '{':
				stack = append(stack, r)
			case ')', ']', '}':
				if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
					return &syntaxError{message: fmt.Sprintf("unbalanced %q", r), line: lineNo, column: col + 1}
				}
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) > 0 {
		return &syntaxError{message: fmt.Sprintf("unclosed %q", stack[len(stack)-1]), line: lineNo, column: 1}
	}
	return nil
}
