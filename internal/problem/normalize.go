package problem

import (
	"encoding/json"
	"fmt"

	"github.com/Mayankdaya/CodeClash-sub000/internal/errors"
)

// maxUnwrapDepth bounds how many layers of string-encoding Normalize will
// peel off a payload.
const maxUnwrapDepth = 3

// Normalize turns a raw generator payload into a typed Problem. Generators
// have been observed to return the problem object itself, the object wrapped
// in a JSON string, or an object whose testCases field is itself a
// string-encoded array; all of these are accepted.
func Normalize(raw []byte) (*Problem, error) {
	obj, err := unwrap(raw, maxUnwrapDepth)
	if err != nil {
		return nil, err
	}

	var p Problem
	if err := json.Unmarshal(obj, &p); err != nil {
		// testCases may be double-encoded inside an otherwise sound object.
		p2, err2 := normalizeLoose(obj)
		if err2 != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return p2, nil
	}

	if len(p.TestCases) == 0 {
		if p2, err := normalizeLoose(obj); err == nil && len(p2.TestCases) > 0 {
			return p2, nil
		}
	}

	return &p, nil
}

// unwrap peels string-encoded layers until the payload is a JSON object.
func unwrap(raw []byte, depth int) ([]byte, error) {
	for i := 0; i < depth; i++ {
		trimmed := trimSpace(raw)
		if len(trimmed) == 0 {
			return nil, fmt.Errorf("%w: empty payload", errors.ErrInvalidPayload)
		}

		if trimmed[0] == '{' {
			return trimmed, nil
		}

		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: payload is neither object nor encoded string", errors.ErrInvalidPayload)
		}
		raw = []byte(inner)
	}

	return nil, fmt.Errorf("%w: payload nested deeper than %d layers", errors.ErrInvalidPayload, depth)
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// normalizeLoose handles objects whose testCases field arrived as a
// string-encoded array rather than an array.
func normalizeLoose(obj []byte) (*Problem, error) {
	var loose struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Difficulty  string            `json:"difficulty"`
		EntryPoint  string            `json:"entryPoint"`
		TestCases   json.RawMessage   `json:"testCases"`
		StarterCode map[string]string `json:"starterCode"`
	}
	if err := json.Unmarshal(obj, &loose); err != nil {
		return nil, err
	}

	p := &Problem{
		Title:       loose.Title,
		Description: loose.Description,
		Difficulty:  loose.Difficulty,
		EntryPoint:  loose.EntryPoint,
		StarterCode: loose.StarterCode,
	}

	if len(loose.TestCases) == 0 {
		return p, nil
	}

	cases := trimSpace(loose.TestCases)
	if len(cases) > 0 && cases[0] == '"' {
		var inner string
		if err := json.Unmarshal(cases, &inner); err != nil {
			return nil, err
		}
		cases = []byte(inner)
	}

	if err := json.Unmarshal(cases, &p.TestCases); err != nil {
		return nil, err
	}

	return p, nil
}
