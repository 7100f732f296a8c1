package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"planguard/internal/core"
	"planguard/internal/limits"
	"planguard/internal/types"
)

// LimitsManager is the full manager surface needed by the plan info and ops
// endpoints, beyond the read-only LimitsProvider used by checks.
type LimitsManager interface {
	LimitsProvider
	Refresh(ctx context.Context, tenantID string) types.Snapshot
	CachedEntry(tenantID string) (limits.Entry, bool)
	MirroredSnapshot(ctx context.Context, tenantID string) (types.Snapshot, error)
}

// PlanHandler implements the plan info endpoint and the ops/debug surface
// ("Refresh Limits" and the raw cache view).
type PlanHandler struct {
	manager LimitsManager
	usage   UsageSource // may be nil
	logger  *slog.Logger
	now     func() time.Time
}

// PlanHandlerOption is a functional option for configuring a PlanHandler.
type PlanHandlerOption func(*PlanHandler)

// WithPlanUsageSource attaches a database-backed usage source for the usage
// summary in plan info responses.
func WithPlanUsageSource(u UsageSource) PlanHandlerOption {
	return func(h *PlanHandler) {
		h.usage = u
	}
}

// WithPlanClock overrides the handler's time source for tests.
func WithPlanClock(now func() time.Time) PlanHandlerOption {
	return func(h *PlanHandler) {
		h.now = now
	}
}

// NewPlanHandler creates the plan info / ops handler.
func NewPlanHandler(manager LimitsManager, logger *slog.Logger, opts ...PlanHandlerOption) *PlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &PlanHandler{
		manager: manager,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the public plan info endpoint.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plan/{tenant}", h.HandlePlanInfo)
}

// RegisterOpsRoutes mounts the secret-gated ops endpoints.
func (h *PlanHandler) RegisterOpsRoutes(r chi.Router) {
	r.Post("/plan/{tenant}/refresh", h.HandleRefresh)
	r.Get("/plan/{tenant}/cached", h.HandleCached)
}

// --- Response Models ---

// usageSummary reports current consumption against the plan's limits.
type usageSummary struct {
	ActiveUsers         *int `json:"active_users,omitempty"`
	ExternalEmailsToday *int `json:"external_emails_today,omitempty"`
}

// planInfoResponse is the plan info view: the current snapshot plus, when a
// usage database is configured, the consumption summary.
type planInfoResponse struct {
	Snapshot types.Snapshot `json:"snapshot"`
	Usage    *usageSummary  `json:"usage,omitempty"`
}

// cachedResponse is the ops debug view: the raw cache entry and, when a
// mirror is configured, the durable mirror row.
type cachedResponse struct {
	Cached *limits.Entry   `json:"cached,omitempty"`
	Mirror *types.Snapshot `json:"mirror,omitempty"`
}

// --- Handlers ---

// HandlePlanInfo implements GET /v1/plan/{tenant}.
func (h *PlanHandler) HandlePlanInfo(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	if tenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant is required", nil))
		return
	}

	snap := h.manager.GetLimits(r.Context(), tenantID)
	resp := planInfoResponse{Snapshot: snap}

	if h.usage != nil {
		resp.Usage = h.usageFor(r.Context(), tenantID)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleRefresh implements POST /v1/plan/{tenant}/refresh: the explicit
// invalidate-then-refetch action.
func (h *PlanHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	if tenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant is required", nil))
		return
	}

	snap := h.manager.Refresh(r.Context(), tenantID)
	h.logger.Info("limits refreshed via ops endpoint",
		"tenant", tenantID,
		"plan", snap.PlanName,
		"emergency", snap.IsEmergency,
	)

	// An operator asked for a refetch and got the fail-closed fallback
	// instead: surface that as an upstream failure. Enforcement checks keep
	// running on the emergency snapshot regardless.
	if snap.IsEmergency {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamAuthority,
			"authority fetch failed, emergency limits are active",
			nil,
			map[string]any{"snapshot": snap},
		))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: planInfoResponse{Snapshot: snap}})
}

// HandleCached implements GET /v1/plan/{tenant}/cached.
func (h *PlanHandler) HandleCached(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	if tenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant is required", nil))
		return
	}

	resp := cachedResponse{}
	if entry, ok := h.manager.CachedEntry(tenantID); ok {
		resp.Cached = &entry
	}
	if mirrored, err := h.manager.MirroredSnapshot(r.Context(), tenantID); err == nil {
		resp.Mirror = &mirrored
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// usageFor reads the usage summary, best effort: a failing counter query
// degrades the view rather than failing the whole plan info response.
func (h *PlanHandler) usageFor(ctx context.Context, tenantID string) *usageSummary {
	summary := &usageSummary{}
	if users, err := h.usage.CountActiveUsers(ctx, tenantID); err == nil {
		summary.ActiveUsers = &users
	} else {
		h.logger.Warn("user count unavailable for plan info", "tenant", tenantID, "error", err)
	}
	day := h.now().UTC().Truncate(24 * time.Hour)
	if emails, err := h.usage.ExternalEmailsToday(ctx, tenantID, day); err == nil {
		summary.ExternalEmailsToday = &emails
	} else {
		h.logger.Warn("email count unavailable for plan info", "tenant", tenantID, "error", err)
	}
	return summary
}
