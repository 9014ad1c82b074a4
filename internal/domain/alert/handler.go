package alert

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the emergency endpoints. The trigger route gets
// its own tight rate limit so a stuck SOS button cannot flood caregivers.
func (h *Handler) RegisterRoutes(api *echo.Group, triggerLimit middleware.RateLimitConfig) {
	api.POST("/emergency/trigger", h.Trigger,
		auth.RequireRole(auth.RoleElder),
		middleware.RateLimit(triggerLimit))
	api.PUT("/emergency/:id/resolve", h.Resolve, auth.RequireRole(auth.RoleCaregiver))
	api.GET("/emergency/active", h.Active)
	api.GET("/emergency/history", h.History)
}

type triggerRequest struct {
	Location *Location `json:"location"`
	Notes    *string   `json:"notes"`
}

func (h *Handler) Trigger(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	elderID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Trigger(c.Request().Context(), elderID, req.Location, req.Notes)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

type resolveRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	caregiverID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Resolve(c.Request().Context(), id, caregiverID, req.Notes)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, a)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	case errors.Is(err, ErrAlreadyResolved):
		return echo.NewHTTPError(http.StatusConflict, "alert already resolved")
	case errors.Is(err, ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, "not a caregiver for this elder")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Active(c echo.Context) error {
	ctx := c.Request().Context()
	alerts, err := h.svc.Active(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()

	// Elders see their own history; caregivers pass the elder explicitly.
	elderID := auth.UserIDFromContext(ctx)
	if param := c.QueryParam("elder_id"); param != "" {
		parsed, err := uuid.Parse(param)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid elder_id")
		}
		elderID = parsed
	}

	pg := pagination.FromContext(c)
	alerts, total, err := h.svc.History(ctx, elderID, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not a caregiver for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, pg.Limit, pg.Offset))
}
