package medication

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/medications", h.Create)
	api.GET("/medications", h.List)
	api.PUT("/medications/:id", h.Update)
	api.DELETE("/medications/:id", h.Delete)

	api.GET("/medications/today", h.Today)
	api.GET("/medications/logs", h.Logs)
	api.PUT("/medications/logs/:id/taken", h.MarkTaken)
	api.PUT("/medications/logs/:id/missed", h.MarkMissed)
	api.PUT("/medications/logs/:id/skipped", h.MarkSkipped)
	api.GET("/medications/stats", h.Stats)
}

type definitionRequest struct {
	ElderID       *uuid.UUID `json:"elder_id"`
	Name          string     `json:"name"`
	Dosage        string     `json:"dosage"`
	ScheduleTimes []string   `json:"schedule_times"`
	StartDate     string     `json:"start_date"` // YYYY-MM-DD, today when empty
	EndDate       string     `json:"end_date"`   // YYYY-MM-DD, open-ended when empty
}

func (r *definitionRequest) dates() (start time.Time, end *time.Time, err error) {
	if r.StartDate != "" {
		start, err = time.Parse("2006-01-02", r.StartDate)
		if err != nil {
			return start, nil, fmt.Errorf("invalid start_date, want YYYY-MM-DD")
		}
	}
	if r.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", r.EndDate)
		if err != nil {
			return start, nil, fmt.Errorf("invalid end_date, want YYYY-MM-DD")
		}
		end = &parsed
	}
	return start, end, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req definitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	// Elders create their own definitions; caregivers name the elder.
	elderID := auth.UserIDFromContext(ctx)
	if req.ElderID != nil {
		elderID = *req.ElderID
	}

	start, end, err := req.dates()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	d := &Definition{
		ElderID:       elderID,
		Name:          req.Name,
		Dosage:        req.Dosage,
		ScheduleTimes: req.ScheduleTimes,
		StartDate:     start,
		EndDate:       end,
	}
	if err := h.svc.CreateDefinition(ctx, d, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx)); err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	elderID, err := h.elderFromRequest(c)
	if err != nil {
		return err
	}
	defs, err := h.svc.ListDefinitions(ctx, elderID, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, defs)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}

	ctx := c.Request().Context()
	existing, err := h.svc.GetDefinition(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "medication not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var req definitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Dosage != "" {
		existing.Dosage = req.Dosage
	}
	if len(req.ScheduleTimes) > 0 {
		existing.ScheduleTimes = req.ScheduleTimes
	}
	start, end, err := req.dates()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !start.IsZero() {
		existing.StartDate = start
	}
	if end != nil {
		existing.EndDate = end
	}

	if err := h.svc.UpdateDefinition(ctx, existing, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "medication not found")
		}
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, existing)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteDefinition(ctx, id, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "medication not found")
		}
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Today(c echo.Context) error {
	elderID, err := h.elderFromRequest(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	doses, err := h.svc.Today(ctx, elderID, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doses)
}

func (h *Handler) Logs(c echo.Context) error {
	elderID, err := h.elderFromRequest(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -7)
	to := now
	if v := c.QueryParam("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from, want RFC3339")
		}
		from = parsed
	}
	if v := c.QueryParam("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to, want RFC3339")
		}
		to = parsed
	}

	ctx := c.Request().Context()
	doses, err := h.svc.Logs(ctx, elderID, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), from, to)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doses)
}

func (h *Handler) MarkTaken(c echo.Context) error {
	return h.transition(c, StatusTaken)
}

func (h *Handler) MarkMissed(c echo.Context) error {
	return h.transition(c, StatusMissed)
}

func (h *Handler) MarkSkipped(c echo.Context) error {
	return h.transition(c, StatusSkipped)
}

type transitionRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) transition(c echo.Context, to InstanceStatus) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid log id")
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	role := auth.RoleFromContext(ctx)

	var inst *Instance
	switch to {
	case StatusTaken:
		inst, err = h.svc.MarkTaken(ctx, id, userID, role, req.Notes)
	case StatusSkipped:
		inst, err = h.svc.MarkSkipped(ctx, id, userID, role, req.Notes)
	default:
		inst, err = h.svc.MarkMissed(ctx, id, userID, role, req.Notes)
	}
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, inst)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "medication log not found")
	case errors.Is(err, ErrAlreadyHandled):
		return echo.NewHTTPError(http.StatusConflict, "medication log already settled")
	case errors.Is(err, ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Stats(c echo.Context) error {
	elderID, err := h.elderFromRequest(c)
	if err != nil {
		return err
	}

	days := 7
	if v := c.QueryParam("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid days")
		}
		days = parsed
	}

	ctx := c.Request().Context()
	stats, err := h.svc.AdherenceStats(ctx, elderID, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), days, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this elder")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// elderFromRequest resolves which elder a read targets: the caller by
// default, or the elder_id query parameter. The service checks whether the
// caller may actually see that elder.
func (h *Handler) elderFromRequest(c echo.Context) (uuid.UUID, error) {
	elderID := auth.UserIDFromContext(c.Request().Context())
	if param := c.QueryParam("elder_id"); param != "" {
		parsed, err := uuid.Parse(param)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid elder_id")
		}
		elderID = parsed
	}
	return elderID, nil
}
