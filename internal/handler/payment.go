package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/payment"
    "github.com/salonova/salon-reservation/internal/repository"
)

// PaymentHandler starts payment attempts and lists them.
type PaymentHandler struct {
    Initiator  *payment.Initiator
    Payments   *repository.PaymentRepo
    Bookings   *repository.BookingRepo
    Formations *repository.FormationRepo
}

func NewPaymentHandler(init *payment.Initiator, payments *repository.PaymentRepo, bookings *repository.BookingRepo, formations *repository.FormationRepo) *PaymentHandler {
    return &PaymentHandler{Initiator: init, Payments: payments, Bookings: bookings, Formations: formations}
}

type initiatePaymentReq struct {
    EntityType string `json:"entity_type"` // booking | enrollment
    EntityID   uint64 `json:"entity_id"`
    Provider   string `json:"provider"` // orange | mtn | wave
    Phone      string `json:"phone"`
    ReturnURL  string `json:"return_url"`
}

// Initiate opens a provider transaction for a booking or enrollment
// the caller owns.  The amount is always taken from the entity, never
// from the request.
// POST /v1/payments
func (h *PaymentHandler) Initiate(c echo.Context) error {
    var req initiatePaymentReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    provider := model.PaymentProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
    if !model.KnownProvider(provider) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "provider must be orange, mtn or wave"})
    }
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
    defer cancel()

    var (
        entityType  model.EntityType
        amount      int64
        description string
    )
    switch model.EntityType(req.EntityType) {
    case model.EntityBooking:
        b, err := h.Bookings.GetByID(ctx, req.EntityID)
        if err != nil {
            if errors.Is(err, sql.ErrNoRows) {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
        }
        if b.UserID != userID {
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        }
        if b.Status != model.BookingStatusTempReserved && b.Status != model.BookingStatusTaken {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not awaiting payment"})
        }
        entityType, amount = model.EntityBooking, b.TotalAmount
        description = "salon booking"
    case model.EntityEnrollment:
        e, err := h.Formations.GetEnrollmentByID(ctx, req.EntityID)
        if err != nil {
            if errors.Is(err, sql.ErrNoRows) {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "enrollment not found"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
        }
        if e.UserID != userID {
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        }
        if e.Status != model.EnrollmentPending {
            return c.JSON(http.StatusConflict, echo.Map{"error": "enrollment is not awaiting payment"})
        }
        f, err := h.Formations.GetByID(ctx, e.FormationID)
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
        }
        entityType, amount = model.EntityEnrollment, f.Price
        description = "formation enrollment"
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "entity_type must be booking or enrollment"})
    }

    init, err := h.Initiator.Initiate(ctx, provider, entityType, req.EntityID, amount, req.Phone, description, req.ReturnURL)
    if err != nil {
        switch {
        case errors.Is(err, payment.ErrGatewayUnavailable):
            return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable, retry later"})
        case errors.Is(err, payment.ErrGatewayDeclined):
            return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "payment provider declined the request"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment initiation failed"})
        }
    }
    return c.JSON(http.StatusCreated, init)
}

// ListForEntity returns the payment attempts against one entity.
// GET /v1/payments?entity_type=booking&entity_id=42
func (h *PaymentHandler) ListForEntity(c echo.Context) error {
    entityType := model.EntityType(c.QueryParam("entity_type"))
    if entityType != model.EntityBooking && entityType != model.EntityEnrollment {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "entity_type must be booking or enrollment"})
    }
    id, err := strconv.ParseUint(c.QueryParam("entity_id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entity_id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    list, err := h.Payments.ListByEntity(ctx, entityType, id)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"payments": list})
}
