package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/salonova/salon-reservation/internal/booking"
    "github.com/salonova/salon-reservation/internal/jobs"
    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/promo"
    "github.com/salonova/salon-reservation/internal/repository"
)

// AdminHandler serves the staff-only operations: promo code
// administration, slot management, leave blocking and manual job
// triggers.
type AdminHandler struct {
    Coord  *booking.Coordinator
    Slots  *repository.SlotRepo
    Promos *repository.PromoRepo
    Engine *promo.Engine
    Jobs   *jobs.Runner
}

func NewAdminHandler(coord *booking.Coordinator, slots *repository.SlotRepo, promos *repository.PromoRepo, engine *promo.Engine, runner *jobs.Runner) *AdminHandler {
    return &AdminHandler{Coord: coord, Slots: slots, Promos: promos, Engine: engine, Jobs: runner}
}

type createPromoReq struct {
    Code            string   `json:"code"` // empty to generate one
    DiscountType    string   `json:"discount_type"`
    DiscountValue   int64    `json:"discount_value"`
    MinAmount       int64    `json:"min_amount"`
    MaxDiscount     int64    `json:"max_discount"`
    ValidFrom       string   `json:"valid_from"`  // 2006-01-02
    ValidUntil      string   `json:"valid_until"` // 2006-01-02
    MaxUsage        int      `json:"max_usage"`
    MaxUsagePerUser int      `json:"max_usage_per_user"`
    PrestationIDs   []uint64 `json:"prestation_ids"`
}

// CreatePromo creates a promo code.  An empty code asks the server to
// generate a random one.
// POST /v1/admin/promo-codes
func (h *AdminHandler) CreatePromo(c echo.Context) error {
    var req createPromoReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    dt := model.DiscountType(strings.ToUpper(strings.TrimSpace(req.DiscountType)))
    if dt != model.DiscountPercentage && dt != model.DiscountFixed {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "discount_type must be PERCENTAGE or FIXED"})
    }
    if req.DiscountValue <= 0 || (dt == model.DiscountPercentage && req.DiscountValue > 100) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid discount_value"})
    }
    from, err := time.Parse("2006-01-02", req.ValidFrom)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_from must be YYYY-MM-DD"})
    }
    until, err := time.Parse("2006-01-02", req.ValidUntil)
    if err != nil || !until.After(from) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_until must be a day after valid_from"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    code := strings.ToUpper(strings.TrimSpace(req.Code))
    if code == "" {
        code, err = h.Engine.GenerateRandomCode(ctx, 8)
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "code generation failed"})
        }
    }

    p := &model.PromoCode{
        Code:            code,
        DiscountType:    dt,
        DiscountValue:   req.DiscountValue,
        MinAmount:       req.MinAmount,
        MaxDiscount:     req.MaxDiscount,
        ValidFrom:       from,
        ValidUntil:      until.Add(24*time.Hour - time.Second), // inclusive end day
        MaxUsage:        req.MaxUsage,
        MaxUsagePerUser: req.MaxUsagePerUser,
        IsActive:        true,
        PrestationIDs:   req.PrestationIDs,
    }
    if err := h.Promos.Create(ctx, p); err != nil {
        if errors.Is(err, repository.ErrDuplicate) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "code already exists"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
    }
    return c.JSON(http.StatusCreated, echo.Map{"promo_code": p})
}

// ListPromos returns every promo code, newest first.
// GET /v1/admin/promo-codes
func (h *AdminHandler) ListPromos(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    list, err := h.Promos.List(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"promo_codes": list})
}

// DeactivatePromo flips a code's kill switch; past usages stand.
// DELETE /v1/admin/promo-codes/:id
func (h *AdminHandler) DeactivatePromo(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Promos.Deactivate(ctx, id); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
    }
    return c.NoContent(http.StatusNoContent)
}

type createSlotReq struct {
    StartTime string `json:"start_time"` // HH:MM
    Label     string `json:"label"`
}

// CreateSlot adds a bookable time slot.
// POST /v1/admin/slots
func (h *AdminHandler) CreateSlot(c echo.Context) error {
    var req createSlotReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if _, err := time.Parse("15:04", req.StartTime); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time must be HH:MM"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s := &model.Slot{StartTime: req.StartTime, Label: req.Label, IsActive: true}
    if err := h.Slots.Create(ctx, s); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
    }
    return c.JSON(http.StatusCreated, echo.Map{"slot": s})
}

type onLeaveReq struct {
    SlotID uint64 `json:"slot_id"`
    Date   string `json:"date"`
}

// MarkOnLeave blocks a (slot, date) pair while staff are away.
// POST /v1/admin/on-leave
func (h *AdminHandler) MarkOnLeave(c echo.Context) error {
    var req onLeaveReq
    if err := c.Bind(&req); err != nil || req.SlotID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot_id and date required"})
    }
    if !repository.ValidDate(req.Date, time.Now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be a future day in YYYY-MM-DD form"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Coord.MarkOnLeave(ctx, req.SlotID, req.Date); err != nil {
        switch {
        case errors.Is(err, repository.ErrSlotTaken):
            return c.JSON(http.StatusConflict, echo.Map{"error": "slot already occupied for that date"})
        case errors.Is(err, booking.ErrLockTimeout):
            return c.JSON(http.StatusConflict, echo.Map{"error": "slot is contended, retry"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
        }
    }
    return c.NoContent(http.StatusNoContent)
}

// ConfirmBooking settles a booking whose payment was verified out of
// band, typically when the provider callback never arrived but the
// money shows on the provider console.  It runs the same confirm
// transition as webhook reconciliation and counts any tentative promo
// usage so the code's caps stay honest.
// POST /v1/admin/bookings/:id/confirm
func (h *AdminHandler) ConfirmBooking(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Coord.Confirm(ctx, id); err != nil {
        switch {
        case errors.Is(err, sql.ErrNoRows):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        case errors.Is(err, repository.ErrInvalidTransition):
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking cannot be confirmed in its current state"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirm failed"})
        }
    }
    applied, err := h.Engine.ConfirmUsage(ctx, id)
    if err != nil {
        c.Logger().Warnf("promo confirmation for booking %d failed: %v", id, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "confirmed", "promo_counted": applied})
}

// RunExpiry triggers the stale reservation and enrollment sweeps now.
// POST /v1/admin/jobs/expire
func (h *AdminHandler) RunExpiry(c echo.Context) error {
    h.Jobs.RunExpiry(c.Request().Context())
    return c.JSON(http.StatusOK, echo.Map{"status": "done"})
}

// RunReminders triggers the reminder job now.
// POST /v1/admin/jobs/reminders
func (h *AdminHandler) RunReminders(c echo.Context) error {
    h.Jobs.RunReminders(c.Request().Context())
    return c.JSON(http.StatusOK, echo.Map{"status": "done"})
}
