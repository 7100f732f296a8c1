package limits

import "planguard/internal/types"

// emergencyBlockedModules is the conservative deny-list applied while the
// authority is unreachable. It blocks every module family that is gated by
// any paid plan, so an outage can never be used to install restricted
// modules (fail closed, not open).
var emergencyBlockedModules = []string{
	"stock", "stock_*",
	"purchase", "purchase_*",
	"mrp", "mrp_*",
	"hr", "hr_*",
	"account_accountant",
	"mass_mailing*",
	"marketing_automation*",
}

// EmergencySnapshot returns the fail-closed fallback limits used when the
// authority cannot deliver a real snapshot. The values are deliberately more
// restrictive than any published plan: a single user and no external email.
// FetchedAt is left zero because the data never came from the authority.
func EmergencySnapshot() types.Snapshot {
	return types.Snapshot{
		SubscriptionCode:        "EMERGENCY",
		PlanName:                "Emergency Limits",
		MaxUsers:                1,
		MaxExternalEmailsPerDay: 0,
		BlockedModulePatterns:   types.NormalizePatterns(emergencyBlockedModules),
		IsEmergency:             true,
	}
}
