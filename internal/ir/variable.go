package ir

import (
	"slices"
	"strings"
)

// Variable names a value guarded by a synchronization block.
type Variable string

// NewVariableSet returns vars sorted and with duplicates and empty names
// removed. The input slice is not modified.
func NewVariableSet(vars ...Variable) []Variable {
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		if strings.TrimSpace(string(v)) == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MergeVariables returns the sorted union of both sets.
func MergeVariables(a, b []Variable) []Variable {
	all := make([]Variable, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return NewVariableSet(all...)
}

// VariableStrings converts a variable set to plain strings.
func VariableStrings(vars []Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = string(v)
	}
	return out
}
