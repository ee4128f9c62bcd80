// Package diagnostics turns Jenkins validation error text into positioned records.
package diagnostics

import (
	"regexp"
	"strconv"
	"strings"
)

// Jenkins reports pipeline errors as fragments like
// "WorkflowScript: 46: unexpected token: } @ line 46, column 1."
var errorFragmentRe = regexp.MustCompile(`WorkflowScript:\s+\d+:\s+(.+?)\s+@\s+line\s+(\d+),\s+column\s+(\d+)\.`)

// Severity of a diagnostic. Jenkins only reports hard errors.
type Severity string

const SeverityError Severity = "error"

// Diagnostic is one positioned error extracted from a validation response.
// Line and Column are 0-based, ready for editor addressing.
type Diagnostic struct {
	Line     uint32   `json:"line"`
	Column   uint32   `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Parse extracts all well-formed error fragments from raw response text, in
// order of appearance. Fragments that do not fit the pattern are skipped;
// empty or matchless input yields an empty slice. Parse never fails.
func Parse(text string) []Diagnostic {
	matches := errorFragmentRe.FindAllStringSubmatch(text, -1)
	out := make([]Diagnostic, 0, len(matches))
	for _, m := range matches {
		line, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		col, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			continue
		}
		out = append(out, Diagnostic{
			Line:     zeroBased(uint32(line)),
			Column:   zeroBased(uint32(col)),
			Severity: SeverityError,
			Message:  strings.TrimSpace(m[1]),
		})
	}
	return out
}

// zeroBased converts a 1-based remote position, clamping at zero.
func zeroBased(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return n - 1
}
