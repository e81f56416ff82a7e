package diff

import (
	"fmt"
	"strconv"
	"strings"
)

// Selection addresses hunks within the current diff. An empty selection or
// the word "all" covers every pending hunk; otherwise it is a comma or
// whitespace separated list of 1-based indices.
type Selection struct {
	// All is true when the selection covers every pending hunk.
	All bool
	// Indices holds the explicit 1-based hunk indices, deduplicated, in
	// input order. Empty when All is true.
	Indices []int
}

// ParseSelection parses the selection grammar against a diff of hunkCount
// hunks.
func ParseSelection(input string, hunkCount int) (Selection, error) {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" || trimmed == "all" {
		return Selection{All: true}, nil
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	seen := make(map[int]bool)
	var indices []int
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return Selection{}, fmt.Errorf("invalid hunk index %q", field)
		}
		if n < 1 || n > hunkCount {
			return Selection{}, fmt.Errorf("hunk index %d out of range 1-%d", n, hunkCount)
		}
		if !seen[n] {
			seen[n] = true
			indices = append(indices, n)
		}
	}
	if len(indices) == 0 {
		return Selection{}, fmt.Errorf("selection %q names no hunks", input)
	}
	return Selection{Indices: indices}, nil
}

// Contains reports whether the 1-based index is part of the selection.
func (s Selection) Contains(index int) bool {
	if s.All {
		return true
	}
	for _, n := range s.Indices {
		if n == index {
			return true
		}
	}
	return false
}
