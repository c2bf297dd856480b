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
    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/promo"
    "github.com/salonova/salon-reservation/internal/repository"
)

// BookingHandler serves slot discovery and the booking lifecycle.
type BookingHandler struct {
    Coord       *booking.Coordinator
    Bookings    *repository.BookingRepo
    Slots       *repository.SlotRepo
    Prestations *repository.PrestationRepo
    Promos      *promo.Engine
}

func NewBookingHandler(coord *booking.Coordinator, bookings *repository.BookingRepo, slots *repository.SlotRepo, prestations *repository.PrestationRepo, promos *promo.Engine) *BookingHandler {
    return &BookingHandler{Coord: coord, Bookings: bookings, Slots: slots, Prestations: prestations, Promos: promos}
}

// Availability returns every active slot for a date with its free flag.
// GET /v1/slots/availability?date=2006-01-02
func (h *BookingHandler) Availability(c echo.Context) error {
    date := strings.TrimSpace(c.QueryParam("date"))
    if !repository.ValidDate(date, time.Now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be a future day in YYYY-MM-DD form"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    slots, err := h.Slots.AvailabilityByDate(ctx, date)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "availability query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"date": date, "slots": slots})
}

// ListPrestations returns the bookable services.
// GET /v1/prestations
func (h *BookingHandler) ListPrestations(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    list, err := h.Prestations.ListActive(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"prestations": list})
}

type createBookingReq struct {
    SlotID       uint64 `json:"slot_id"`
    Date         string `json:"date"`
    PrestationID uint64 `json:"prestation_id"`
    PromoCode    string `json:"promo_code"`
}

// Create reserves a (slot, date) pair.  The reservation starts
// TEMP_RESERVED and must be paid before the expiry job reclaims it.
// A promo code, when provided, is applied tentatively: the discount
// shapes the amount due now, but the code's usage only counts once
// the payment completes.
// POST /v1/bookings
func (h *BookingHandler) Create(c echo.Context) error {
    var req createBookingReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.SlotID == 0 || req.PrestationID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot_id and prestation_id required"})
    }
    if !repository.ValidDate(req.Date, time.Now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be a future day in YYYY-MM-DD form"})
    }
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    slot, err := h.Slots.GetByID(ctx, req.SlotID)
    if err != nil || !slot.IsActive {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
    }
    prestation, err := h.Prestations.GetByID(ctx, req.PrestationID)
    if err != nil || !prestation.IsActive {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "prestation not found"})
    }

    b := &model.Booking{
        UserID:         userID,
        SlotID:         req.SlotID,
        Date:           req.Date,
        PrestationID:   req.PrestationID,
        OriginalAmount: prestation.Price,
        TotalAmount:    prestation.Price,
    }

    var promoResult *promo.ApplyResult
    if code := strings.TrimSpace(req.PromoCode); code != "" {
        promoResult, err = h.Promos.ApplyTentative(ctx, promo.ApplyInput{
            Code:         code,
            UserID:       userID,
            PrestationID: req.PrestationID,
            Amount:       prestation.Price,
            ClientIP:     c.RealIP(),
            UserAgent:    c.Request().UserAgent(),
        })
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "promo check failed"})
        }
        if !promoResult.Valid {
            return c.JSON(http.StatusUnprocessableEntity, echo.Map{
                "error":  "promo code rejected",
                "reason": promoResult.Reason,
            })
        }
        b.DiscountAmount = promoResult.DiscountAmount
        b.TotalAmount = promoResult.FinalAmount
        b.PendingPromo = &promoResult.Promo.Code
    }

    if err := h.Coord.Reserve(ctx, b); err != nil {
        switch {
        case errors.Is(err, repository.ErrSlotTaken):
            return c.JSON(http.StatusConflict, echo.Map{"error": "slot already taken for that date"})
        case errors.Is(err, booking.ErrLockTimeout):
            return c.JSON(http.StatusConflict, echo.Map{"error": "slot is contended, retry"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
        }
    }

    if promoResult != nil && promoResult.UsageID != 0 {
        // Link the audit row to the booking it now belongs to.
        if err := h.Promos.AttachBooking(ctx, promoResult.UsageID, b.ID); err != nil {
            c.Logger().Warnf("attach promo usage %d to booking %d failed: %v", promoResult.UsageID, b.ID, err)
        }
    }
    return c.JSON(http.StatusCreated, echo.Map{"booking": b})
}

// List returns the caller's bookings, newest first.
// GET /v1/bookings
func (h *BookingHandler) List(c echo.Context) error {
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    list, err := h.Bookings.ListByUser(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Cancel cancels one of the caller's bookings and revokes any
// validated promo usage attached to it.
// DELETE /v1/bookings/:id
func (h *BookingHandler) Cancel(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    b, err := h.Bookings.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !h.canManage(c, b) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }

    if err := h.Coord.Cancel(ctx, id, "cancelled by customer"); err != nil {
        if errors.Is(err, repository.ErrInvalidTransition) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking cannot be cancelled in its current state"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
    }
    return c.NoContent(http.StatusNoContent)
}

type rescheduleReq struct {
    SlotID uint64 `json:"slot_id"`
    Date   string `json:"date"`
}

// Reschedule moves a confirmed booking to a new (slot, date) pair.
// PUT /v1/bookings/:id/reschedule
func (h *BookingHandler) Reschedule(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var req rescheduleReq
    if err := c.Bind(&req); err != nil || req.SlotID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot_id and date required"})
    }
    if !repository.ValidDate(req.Date, time.Now()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be a future day in YYYY-MM-DD form"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    b, err := h.Bookings.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !h.canManage(c, b) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    slot, err := h.Slots.GetByID(ctx, req.SlotID)
    if err != nil || !slot.IsActive {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
    }

    if err := h.Coord.Reschedule(ctx, id, req.SlotID, req.Date); err != nil {
        switch {
        case errors.Is(err, repository.ErrSlotTaken):
            return c.JSON(http.StatusConflict, echo.Map{"error": "target slot already taken"})
        case errors.Is(err, repository.ErrInvalidTransition):
            return c.JSON(http.StatusConflict, echo.Map{"error": "only confirmed bookings can be rescheduled"})
        case errors.Is(err, booking.ErrLockTimeout):
            return c.JSON(http.StatusConflict, echo.Map{"error": "slot is contended, retry"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reschedule failed"})
        }
    }
    return c.NoContent(http.StatusNoContent)
}

// canManage reports whether the caller owns the booking or is an admin.
func (h *BookingHandler) canManage(c echo.Context, b *model.Booking) bool {
    if role, _ := c.Get("role").(string); role == model.RoleAdmin {
        return true
    }
    return b.UserID != 0 && b.UserID == authedUserID(c)
}
