package handler

import (
    "context"
    "errors"
    "io"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/payment"
    "github.com/salonova/salon-reservation/internal/repository"
)

// WebhookHandler receives provider callbacks.  Providers retry on
// non-2xx answers, so the status codes here are part of the contract:
// 200 for anything settled (including replays), 404 for callbacks we
// cannot match, 400 for payloads we cannot parse, 500 when our side
// failed and a retry may succeed.
type WebhookHandler struct {
    Reconciler *payment.Reconciler
    Log        *logrus.Logger
}

func NewWebhookHandler(rec *payment.Reconciler, log *logrus.Logger) *WebhookHandler {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &WebhookHandler{Reconciler: rec, Log: log}
}

// Receive handles POST /v1/webhooks/:provider.
func (h *WebhookHandler) Receive(c echo.Context) error {
    provider := model.PaymentProvider(c.Param("provider"))
    if !model.KnownProvider(provider) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown provider"})
    }
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
    defer cancel()

    res, err := h.Reconciler.Reconcile(ctx, provider, body)
    if err != nil {
        switch {
        case errors.Is(err, payment.ErrBadWebhook):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed payload"})
        case errors.Is(err, repository.ErrPaymentNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown transaction"})
        case errors.Is(err, payment.ErrUnknownProvider):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown provider"})
        default:
            h.Log.WithError(err).WithField("provider", provider).Error("webhook reconciliation failed")
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconciliation failed"})
        }
    }
    return c.JSON(http.StatusOK, res)
}
