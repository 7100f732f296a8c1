// Package handlers contains the HTTP handler implementations for the
// planguard API: the enforcement check endpoints the host application calls
// before gated actions, and the plan info / ops surface.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"planguard/internal/core"
	"planguard/internal/enforce"
	"planguard/internal/types"
)

// --- Service Interfaces ---

// LimitsProvider serves the current plan limits for a tenant. It is total:
// it always returns a snapshot, possibly the emergency fallback.
type LimitsProvider interface {
	GetLimits(ctx context.Context, tenantID string) types.Snapshot
}

// UsageSource supplies the usage counts consumed by enforcement checks when
// the caller does not pass them explicitly. Implemented by db.UsageDB; nil
// when the service runs without a tenant database, in which case counts are
// required in the request body.
type UsageSource interface {
	CountActiveUsers(ctx context.Context, tenantID string) (int, error)
	ExternalEmailsToday(ctx context.Context, tenantID string, day time.Time) (int, error)
	RecordExternalEmails(ctx context.Context, tenantID string, day time.Time, n int) error
}

// ChecksHandler implements the three enforcement check endpoints.
type ChecksHandler struct {
	limits  LimitsProvider
	usage   UsageSource // may be nil
	metrics *Metrics    // may be nil
	logger  *slog.Logger
	now     func() time.Time
}

// ChecksHandlerOption is a functional option for configuring a ChecksHandler.
type ChecksHandlerOption func(*ChecksHandler)

// WithUsageSource attaches a database-backed usage source.
func WithUsageSource(u UsageSource) ChecksHandlerOption {
	return func(h *ChecksHandler) {
		h.usage = u
	}
}

// WithMetrics attaches decision metrics.
func WithMetrics(m *Metrics) ChecksHandlerOption {
	return func(h *ChecksHandler) {
		h.metrics = m
	}
}

// WithClock overrides the handler's time source for tests.
func WithClock(now func() time.Time) ChecksHandlerOption {
	return func(h *ChecksHandler) {
		h.now = now
	}
}

// NewChecksHandler creates the enforcement check handler.
func NewChecksHandler(limits LimitsProvider, logger *slog.Logger, opts ...ChecksHandlerOption) *ChecksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &ChecksHandler{
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the check endpoints on the given router.
func (h *ChecksHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checks/user-creation", h.HandleUserCreation)
	r.Post("/checks/module-install", h.HandleModuleInstall)
	r.Post("/checks/email-send", h.HandleEmailSend)
}

// --- Request/Response Models ---

// userCreationRequest asks whether one more user account may be created.
// CurrentUserCount is optional when a usage source is configured.
type userCreationRequest struct {
	TenantID         string `json:"tenant_id"`
	CurrentUserCount *int   `json:"current_user_count,omitempty"`
}

// moduleInstallRequest asks whether the named module may be installed.
type moduleInstallRequest struct {
	TenantID string `json:"tenant_id"`
	Module   string `json:"module"`
}

// emailSendRequest asks whether one more email may be sent today.
// IsInternal may be supplied directly, or derived server-side from
// Recipient and TenantDomain. CurrentDailyCount is optional when a usage
// source is configured. Record=true additionally counts an allowed external
// send against today's quota.
type emailSendRequest struct {
	TenantID          string `json:"tenant_id"`
	IsInternal        *bool  `json:"is_internal,omitempty"`
	Recipient         string `json:"recipient,omitempty"`
	TenantDomain      string `json:"tenant_domain,omitempty"`
	CurrentDailyCount *int   `json:"current_daily_count,omitempty"`
	Record            bool   `json:"record,omitempty"`
}

// checkResponse is the decision envelope returned by all check endpoints.
type checkResponse struct {
	types.Decision
	PlanName         string `json:"plan_name"`
	SubscriptionCode string `json:"subscription_code"`
}

// --- Handlers ---

// HandleUserCreation implements POST /v1/checks/user-creation.
func (h *ChecksHandler) HandleUserCreation(w http.ResponseWriter, r *http.Request) {
	var req userCreationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.TenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant_id is required", nil))
		return
	}

	snap := h.limits.GetLimits(r.Context(), req.TenantID)

	count, err := h.resolveUserCount(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := enforce.CheckUserCreation(count, snap)
	h.record("user_creation", decision)
	h.respond(w, r, decision, snap)
}

// HandleModuleInstall implements POST /v1/checks/module-install.
func (h *ChecksHandler) HandleModuleInstall(w http.ResponseWriter, r *http.Request) {
	var req moduleInstallRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.TenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant_id is required", nil))
		return
	}
	if req.Module == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidModule, "module is required", nil))
		return
	}

	snap := h.limits.GetLimits(r.Context(), req.TenantID)
	decision := enforce.CheckModuleInstall(req.Module, snap)
	h.record("module_install", decision)
	h.respond(w, r, decision, snap)
}

// HandleEmailSend implements POST /v1/checks/email-send.
func (h *ChecksHandler) HandleEmailSend(w http.ResponseWriter, r *http.Request) {
	var req emailSendRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.TenantID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTenant, "tenant_id is required", nil))
		return
	}

	isInternal, err := h.resolveIsInternal(req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	snap := h.limits.GetLimits(r.Context(), req.TenantID)

	count := 0
	if !isInternal {
		count, err = h.resolveEmailCount(r.Context(), req)
		if err != nil {
			core.Error(w, r, err)
			return
		}
	}

	decision := enforce.CheckEmailSend(isInternal, count, snap)
	h.record("email_send", decision)

	// Internal emails are never counted; denied sends did not happen.
	if decision.Allowed && !isInternal && req.Record {
		if h.usage == nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidCount, "record requires a configured usage database", nil))
			return
		}
		if err := h.usage.RecordExternalEmails(r.Context(), req.TenantID, h.today(), 1); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	h.respond(w, r, decision, snap)
}

// --- Helpers ---

func (h *ChecksHandler) resolveUserCount(ctx context.Context, req userCreationRequest) (int, error) {
	if req.CurrentUserCount != nil {
		if *req.CurrentUserCount < 0 {
			return 0, types.NewAppError(types.ErrCodeValidationInvalidCount, "current_user_count must not be negative", nil)
		}
		return *req.CurrentUserCount, nil
	}
	if h.usage == nil {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidCount, "current_user_count is required when no usage database is configured", nil)
	}
	return h.usage.CountActiveUsers(ctx, req.TenantID)
}

func (h *ChecksHandler) resolveIsInternal(req emailSendRequest) (bool, error) {
	if req.IsInternal != nil {
		return *req.IsInternal, nil
	}
	if req.Recipient == "" {
		return false, types.NewAppError(types.ErrCodeValidationInvalidEmail, "either is_internal or recipient is required", nil)
	}
	return enforce.IsInternalEmail(req.Recipient, req.TenantDomain), nil
}

func (h *ChecksHandler) resolveEmailCount(ctx context.Context, req emailSendRequest) (int, error) {
	if req.CurrentDailyCount != nil {
		if *req.CurrentDailyCount < 0 {
			return 0, types.NewAppError(types.ErrCodeValidationInvalidCount, "current_daily_count must not be negative", nil)
		}
		return *req.CurrentDailyCount, nil
	}
	if h.usage == nil {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidCount, "current_daily_count is required when no usage database is configured", nil)
	}
	return h.usage.ExternalEmailsToday(ctx, req.TenantID, h.today())
}

// today returns midnight UTC of the current day, the key used by the daily
// email counters.
func (h *ChecksHandler) today() time.Time {
	return h.now().UTC().Truncate(24 * time.Hour)
}

func (h *ChecksHandler) record(check string, d types.Decision) {
	if h.metrics == nil {
		return
	}
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	h.metrics.Decisions.WithLabelValues(check, outcome).Inc()
}

// respond writes the decision envelope. A deny is a normal answer, not an
// error, so every decision is a 200.
func (h *ChecksHandler) respond(w http.ResponseWriter, r *http.Request, d types.Decision, snap types.Snapshot) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: checkResponse{
		Decision:         d,
		PlanName:         snap.PlanName,
		SubscriptionCode: snap.SubscriptionCode,
	}})
}
