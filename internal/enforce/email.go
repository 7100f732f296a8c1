package enforce

import "strings"

// IsInternalEmail reports whether the recipient address belongs to the
// tenant's own domain. Convenience for callers that do not classify
// recipients themselves; the comparison is case-insensitive on the domain
// part only.
//
// An empty tenant domain classifies every recipient as external, which is
// the safe direction for quota counting.
func IsInternalEmail(recipient, tenantDomain string) bool {
	if tenantDomain == "" {
		return false
	}
	at := strings.LastIndex(recipient, "@")
	if at < 0 || at == len(recipient)-1 {
		return false
	}
	return strings.EqualFold(recipient[at+1:], tenantDomain)
}
