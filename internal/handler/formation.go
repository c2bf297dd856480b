package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/repository"
)

// FormationHandler serves the e-learning catalogue and enrollments.
type FormationHandler struct {
    Formations *repository.FormationRepo
}

func NewFormationHandler(f *repository.FormationRepo) *FormationHandler {
    return &FormationHandler{Formations: f}
}

// List returns the formations open for enrollment.
// GET /v1/formations
func (h *FormationHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    list, err := h.Formations.ListActive(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"formations": list})
}

type enrollReq struct {
    FormationID uint64 `json:"formation_id"`
}

// Enroll creates a PENDING enrollment; payment activates it.
// POST /v1/formations/enroll
func (h *FormationHandler) Enroll(c echo.Context) error {
    var req enrollReq
    if err := c.Bind(&req); err != nil || req.FormationID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "formation_id required"})
    }
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    f, err := h.Formations.GetByID(ctx, req.FormationID)
    if err != nil || !f.IsActive {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "formation not found"})
    }

    e := &model.Enrollment{UserID: userID, FormationID: f.ID, Status: model.EnrollmentPending}
    if err := h.Formations.CreateEnrollment(ctx, e); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enrollment failed"})
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "enrollment": e,
        "amount_due": f.Price,
    })
}

// MyEnrollments lists the caller's enrollments with formation titles.
// GET /v1/formations/my
func (h *FormationHandler) MyEnrollments(c echo.Context) error {
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    list, err := h.Formations.ListEnrollmentsByUser(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"enrollments": list})
}

type progressReq struct {
    ProgressPct int `json:"progress_pct"`
}

// UpdateProgress records course progress on an active enrollment the
// caller owns.
// PUT /v1/enrollments/:id/progress
func (h *FormationHandler) UpdateProgress(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var req progressReq
    if err := c.Bind(&req); err != nil || req.ProgressPct < 0 || req.ProgressPct > 100 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "progress_pct must be 0-100"})
    }
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Formations.UpdateProgress(ctx, id, userID, req.ProgressPct); err != nil {
        switch {
        case errors.Is(err, sql.ErrNoRows):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "enrollment not found"})
        case errors.Is(err, repository.ErrForbidden):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        case errors.Is(err, repository.ErrInvalidTransition):
            return c.JSON(http.StatusConflict, echo.Map{"error": "enrollment is not active"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
        }
    }
    return c.NoContent(http.StatusNoContent)
}
