package payment

import (
    "context"
    "fmt"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/repository"
)

// Initiation is what a customer gets back after starting a payment.
type Initiation struct {
    Payment    *model.Payment `json:"payment"`
    PaymentURL string         `json:"payment_url,omitempty"`
}

// Initiator starts payment attempts against a provider and records
// the pending row the webhook will later settle.
type Initiator struct {
    gateways *Registry
    payments *repository.PaymentRepo
    currency string
    log      *logrus.Logger
}

// NewInitiator wires an Initiator.  currency defaults to XOF.
func NewInitiator(gateways *Registry, payments *repository.PaymentRepo, currency string, log *logrus.Logger) *Initiator {
    if currency == "" {
        currency = "XOF"
    }
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Initiator{gateways: gateways, payments: payments, currency: currency, log: log}
}

// Initiate opens a transaction with the provider and persists a
// PENDING payment keyed by the provider's external id.  The pending
// row is only written after the provider accepted the request, so a
// declined initiation leaves no trace to reconcile.
func (i *Initiator) Initiate(ctx context.Context, provider model.PaymentProvider, entityType model.EntityType, entityID uint64, amount int64, phone, description, returnURL string) (*Initiation, error) {
    if amount <= 0 {
        return nil, fmt.Errorf("amount must be positive")
    }
    gw, err := i.gateways.ByName(provider)
    if err != nil {
        return nil, err
    }
    reference := uuid.NewString()
    ext, err := gw.Initiate(ctx, InitiateRequest{
        Reference:   reference,
        AmountMinor: amount,
        Currency:    i.currency,
        Phone:       phone,
        Description: description,
        ReturnURL:   returnURL,
    })
    if err != nil {
        return nil, err
    }

    p := &model.Payment{
        EntityType: entityType,
        EntityID:   entityID,
        Provider:   provider,
        Amount:     amount,
        Currency:   i.currency,
        Status:     model.PaymentStatusPending,
    }
    if err := p.SetExternalID(ext.ExternalID); err != nil {
        return nil, err
    }
    if err := i.payments.Create(ctx, p); err != nil {
        // The provider-side transaction is now orphaned; it will
        // expire on their end.
        i.log.WithError(err).WithField("external_id", ext.ExternalID).
            Error("payment row creation failed after initiation")
        return nil, err
    }
    return &Initiation{Payment: p, PaymentURL: ext.PaymentURL}, nil
}
