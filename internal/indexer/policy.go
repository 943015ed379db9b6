package indexer

import (
	"fmt"
	"strings"
)

// ErrorPolicy decides what the pipeline does with a failure while processing one document.
type ErrorPolicy int

const (
	// Absorb logs the failure and reports success, leaving the document in its last good state.
	Absorb ErrorPolicy = iota
	// Propagate returns the failure to the caller.
	Propagate
)

func (p ErrorPolicy) String() string {
	if p == Propagate {
		return "propagate"
	}
	return "absorb"
}

// ParseErrorPolicy accepts "absorb" (or "") and "propagate".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absorb":
		return Absorb, nil
	case "propagate":
		return Propagate, nil
	}
	return Absorb, fmt.Errorf("unknown error policy %q", s)
}
