// Package types defines the shared domain types for the planguard service:
// plan-limit snapshots, enforcement decisions, the application error
// taxonomy, and request-scoped context helpers.
package types

import (
	"sort"
	"time"
)

// Unlimited is the sentinel limit value meaning "no limit". The authority
// sends -1 for unlimited quotas; 0 is a real limit (nothing allowed).
const Unlimited = -1

// Snapshot is an immutable point-in-time record of a tenant's plan limits.
// A refresh always produces a new Snapshot; existing values are never
// mutated in place.
type Snapshot struct {
	SubscriptionCode string `json:"subscription_code"`
	PlanName         string `json:"plan_name"`

	// MaxUsers is the maximum number of active internal user accounts,
	// or Unlimited.
	MaxUsers int `json:"max_users"`

	// MaxExternalEmailsPerDay caps outbound emails to recipients outside
	// the tenant's own domain, or Unlimited. Internal emails never count.
	MaxExternalEmailsPerDay int `json:"max_external_emails_per_day"`

	// BlockedModulePatterns lists module names or trailing-asterisk prefix
	// patterns that must not be installed under this plan. Deduplicated
	// and sorted at construction.
	BlockedModulePatterns []string `json:"blocked_module_patterns"`

	// FetchedAt is when the authority served this snapshot. Zero for
	// emergency snapshots, which are never served by the authority.
	FetchedAt time.Time `json:"fetched_at,omitempty"`

	// IsEmergency marks fail-closed fallback data produced locally when
	// the authority could not be reached. Enforcement logic is identical;
	// callers may use this to surface a warning.
	IsEmergency bool `json:"is_emergency"`
}

// NormalizePatterns deduplicates and sorts a pattern list. Used when
// constructing a Snapshot so equality checks and responses are stable.
func NormalizePatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// UserLimitReached reports whether creating one more user would exceed the
// plan. A MaxUsers of Unlimited never blocks.
func (s Snapshot) UserLimitReached(currentUsers int) bool {
	return s.MaxUsers != Unlimited && currentUsers >= s.MaxUsers
}

// EmailLimitReached reports whether sending one more external email would
// exceed the daily quota.
func (s Snapshot) EmailLimitReached(todayCount int) bool {
	return s.MaxExternalEmailsPerDay != Unlimited && todayCount >= s.MaxExternalEmailsPerDay
}

// Decision is the outcome of an enforcement check. A deny is a normal
// answer, not an error: Reason is a human-readable message suitable for
// direct display to the end user.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Reason  string    `json:"reason,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`

	// Emergency mirrors Snapshot.IsEmergency so callers can warn the user
	// that the decision was made against fallback limits.
	Emergency bool `json:"emergency,omitempty"`
}

// Allow is the canonical allow decision.
func Allow(emergency bool) Decision {
	return Decision{Allowed: true, Emergency: emergency}
}

// Deny builds a deny decision with the given limit code and display reason.
func Deny(code ErrorCode, reason string, emergency bool) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason, Emergency: emergency}
}
