package enforce

import (
	"fmt"

	"planguard/internal/types"
)

// CheckUserCreation decides whether one more internal user account may be
// created. Denies when the plan's user limit is finite and the current count
// has already reached it. The deny reason names the plan and the limit and is
// suitable for direct display.
func CheckUserCreation(currentUserCount int, snap types.Snapshot) types.Decision {
	if !snap.UserLimitReached(currentUserCount) {
		return types.Allow(snap.IsEmergency)
	}
	return types.Deny(
		types.ErrCodeLimitUsers,
		fmt.Sprintf(
			"user limit reached: your %s allows at most %d users and you currently have %d; upgrade your plan to add more users",
			snap.PlanName, snap.MaxUsers, currentUserCount,
		),
		snap.IsEmergency,
	)
}

// CheckModuleInstall decides whether the named module may be installed under
// the plan's blocked-module patterns.
func CheckModuleInstall(moduleName string, snap types.Snapshot) types.Decision {
	pattern, blocked := MatchingPattern(moduleName, snap.BlockedModulePatterns)
	if !blocked {
		return types.Allow(snap.IsEmergency)
	}
	return types.Deny(
		types.ErrCodeLimitModule,
		fmt.Sprintf(
			"module %q is not included in your plan: blocked by pattern %s under %s; upgrade your plan to access this module",
			moduleName, pattern, snap.PlanName,
		),
		snap.IsEmergency,
	)
}

// CheckEmailSend decides whether one more email may be sent today. Internal
// emails (recipient inside the tenant's own domain, determined by the
// caller) are always allowed and never counted. External emails are denied
// once the finite daily quota is used up; the counter resets at midnight UTC.
func CheckEmailSend(isInternal bool, currentDailyCount int, snap types.Snapshot) types.Decision {
	if isInternal {
		return types.Allow(snap.IsEmergency)
	}
	if !snap.EmailLimitReached(currentDailyCount) {
		return types.Allow(snap.IsEmergency)
	}
	return types.Deny(
		types.ErrCodeLimitEmails,
		fmt.Sprintf(
			"daily email limit reached: your %s allows %d external emails per day and %d have been sent today; internal emails do not count against this limit",
			snap.PlanName, snap.MaxExternalEmailsPerDay, currentDailyCount,
		),
		snap.IsEmergency,
	)
}
