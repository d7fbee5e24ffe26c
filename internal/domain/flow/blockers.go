package flow

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"autoflow/internal/errs"
)

type issueFrontMatter struct {
	BlockedBy any `yaml:"blocked_by"`
}

// ParseBlockedBy extracts the blocked_by declaration from an issue body's
// YAML front matter and normalizes it to a list of issue numbers.
//
// A body without front matter, or front matter without blocked_by, yields an
// empty list.
func ParseBlockedBy(body string) ([]int, error) {
	raw, ok := frontMatterBlock(body)
	if !ok {
		return []int{}, nil
	}

	var fm issueFrontMatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, errs.Wrap(err, "parse issue front matter")
	}

	return NormalizeBlockedBy(fm.BlockedBy)
}

// NormalizeBlockedBy coerces a decoded blocked_by value to a list of issue
// numbers: absent -> empty, a bare number -> single element, a list -> itself.
func NormalizeBlockedBy(value any) ([]int, error) {
	switch typed := value.(type) {
	case nil:
		return []int{}, nil
	case []any:
		numbers := make([]int, 0, len(typed))
		for _, entry := range typed {
			number, err := blockerNumber(entry)
			if err != nil {
				return nil, err
			}
			numbers = append(numbers, number)
		}
		return numbers, nil
	default:
		number, err := blockerNumber(typed)
		if err != nil {
			return nil, err
		}
		return []int{number}, nil
	}
}

func blockerNumber(value any) (int, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("blocked_by entry %v is not an issue number", typed)
		}
		return int(typed), nil
	case string:
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(typed), "#"))
		number, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, fmt.Errorf("blocked_by entry %q is not an issue number", typed)
		}
		return number, nil
	default:
		return 0, fmt.Errorf("blocked_by entry %v (%T) is not an issue number", value, value)
	}
}

// frontMatterBlock returns the YAML between the leading "---" fences. The
// closing fence must be exactly "---" on its own line; lines that merely
// start with dashes (a "----" rule, "---text") are content, not fences.
func frontMatterBlock(body string) (string, bool) {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", false
	}

	rest := normalized[len("---\n"):]
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if line == "---" {
			return strings.Join(lines[:i], "\n"), true
		}
	}
	return "", false
}
