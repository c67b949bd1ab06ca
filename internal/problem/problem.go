// Package problem is the boundary to the external problem-content generator.
// Payloads arrive as loosely-typed, sometimes double-encoded JSON and are
// normalized into typed values before entering any core component.
package problem

import (
	"encoding/json"
	"fmt"

	"github.com/Mayankdaya/CodeClash-sub000/internal/errors"
)

// MinTestCases is the minimum number of executable verification cases a
// payload must carry to be usable for a match.
const MinTestCases = 3

type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
	Hidden   bool            `json:"hidden,omitempty"`
}

// HasExpected reports whether the case carries a non-null expected value.
func (tc *TestCase) HasExpected() bool {
	if len(tc.Expected) == 0 {
		return false
	}
	return string(tc.Expected) != "null"
}

type Problem struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Difficulty  string            `json:"difficulty,omitempty"`
	EntryPoint  string            `json:"entryPoint"`
	TestCases   []TestCase        `json:"testCases"`
	StarterCode map[string]string `json:"starterCode,omitempty"`
}

// Validate enforces the payload shape required before a session may be
// created from it.
func (p *Problem) Validate() error {
	if p.EntryPoint == "" {
		return fmt.Errorf("%w: missing entry point", errors.ErrInvalidPayload)
	}

	if len(p.TestCases) < MinTestCases {
		return fmt.Errorf("%w: %d test cases, need at least %d",
			errors.ErrInvalidPayload, len(p.TestCases), MinTestCases)
	}

	for i := range p.TestCases {
		if !p.TestCases[i].HasExpected() {
			return fmt.Errorf("%w: test case %d has no expected value",
				errors.ErrInvalidPayload, i)
		}
	}

	return nil
}
