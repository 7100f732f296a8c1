// Package enforce contains the pure enforcement logic: the blocked-module
// pattern matcher and the decision functions that turn a usage count plus a
// limits snapshot into an allow/deny answer.
package enforce

import "strings"

// wildcardSuffix marks a trailing-wildcard prefix pattern, e.g. "stock*"
// matches "stock", "stock_account", "stock_landed_costs".
const wildcardSuffix = "*"

// IsBlocked reports whether the module name matches any blocked pattern.
// A pattern either equals the name exactly, or ends with "*" and the name
// starts with the pattern's prefix. Matching is case-sensitive and
// exact-string based; there are no general wildcard or regex semantics.
// An empty pattern set never blocks.
func IsBlocked(moduleName string, patterns []string) bool {
	_, ok := MatchingPattern(moduleName, patterns)
	return ok
}

// MatchingPattern returns the first pattern that blocks the module name,
// so deny messages can cite it. Pure and total; no failure states.
func MatchingPattern(moduleName string, patterns []string) (string, bool) {
	for _, pattern := range patterns {
		if prefix, hasWildcard := strings.CutSuffix(pattern, wildcardSuffix); hasWildcard {
			if strings.HasPrefix(moduleName, prefix) {
				return pattern, true
			}
			continue
		}
		if moduleName == pattern {
			return pattern, true
		}
	}
	return "", false
}
