package location

import (
	"fmt"
	"strings"
)

// Attempt records one failed candidate.
type Attempt struct {
	Candidate string
	Err       error
}

// ResolutionError is returned when every candidate for a required resource
// failed. It names the logical path and every attempt in order.
type ResolutionError struct {
	// Kind is a short description such as "catalog unavailable".
	Kind     string
	Resource string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "resource unavailable"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", kind, e.Resource)
	if len(e.Attempts) == 0 {
		b.WriteString(" (no candidates tried)")
		return b.String()
	}
	b.WriteString(" (tried ")
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Candidate, a.Err)
	}
	b.WriteString(")")
	return b.String()
}

// Candidates returns the attempted candidates in order.
func (e *ResolutionError) Candidates() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Candidate
	}
	return out
}
