package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/salonova/salon-reservation/internal/promo"
)

// PromoHandler serves promo code validation for customers.
type PromoHandler struct {
    Engine *promo.Engine
}

func NewPromoHandler(e *promo.Engine) *PromoHandler {
    return &PromoHandler{Engine: e}
}

type validatePromoReq struct {
    Code         string `json:"code"`
    PrestationID uint64 `json:"prestation_id"`
    Amount       int64  `json:"amount"`
}

// Validate checks a promo code against the caller and the intended
// prestation and returns the discount it would grant.  The attempt is
// audited even when rejected.
// POST /v1/promo-codes/validate
func (h *PromoHandler) Validate(c echo.Context) error {
    var req validatePromoReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if strings.TrimSpace(req.Code) == "" || req.PrestationID == 0 || req.Amount <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "code, prestation_id and amount required"})
    }
    userID := authedUserID(c)
    if userID == 0 {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    out, err := h.Engine.ApplyTentative(ctx, promo.ApplyInput{
        Code:         req.Code,
        UserID:       userID,
        PrestationID: req.PrestationID,
        Amount:       req.Amount,
        ClientIP:     c.RealIP(),
        UserAgent:    c.Request().UserAgent(),
    })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
    }
    if !out.Valid {
        return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": out.Reason})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "valid":           true,
        "discount_amount": out.DiscountAmount,
        "final_amount":    out.FinalAmount,
    })
}
