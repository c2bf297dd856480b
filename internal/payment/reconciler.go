package payment

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/queue"
    "github.com/salonova/salon-reservation/internal/repository"
)

// The reconciler's persistence contracts.  Implemented by the
// repositories; tests substitute in-memory fakes.  All Tx methods run
// inside the reconciliation transaction.

// PaymentStore loads and settles payment rows.
type PaymentStore interface {
    GetByExternalIDTx(ctx context.Context, tx *sql.Tx, provider model.PaymentProvider, externalID string) (*model.Payment, error)
    SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.PaymentStatus) error
    GetByID(ctx context.Context, id uint64) (*model.Payment, error)
}

// BookingSettler confirms a paid booking and attaches its promo code.
type BookingSettler interface {
    ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64) error
    AttachPromoTx(ctx context.Context, tx *sql.Tx, id, promoCodeID uint64) error
}

// PromoSettler confirms the booking's tentative promo usage.
type PromoSettler interface {
    ConfirmUsageTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (promoCodeID uint64, applied bool, err error)
}

// EnrollmentSettler activates or cancels a paid-for enrollment.
type EnrollmentSettler interface {
    ActivateTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error
    CancelTx(ctx context.Context, tx *sql.Tx, id uint64) error
}

// TxBeginner opens the reconciliation transaction.  Satisfied by *sql.DB.
type TxBeginner interface {
    BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ReceiptPublisher delivers receipt events after a reconciliation
// commits.  Implemented by notify.Publisher; may be nil to disable.
type ReceiptPublisher interface {
    PublishPaymentReceipt(ctx context.Context, event queue.PaymentReceiptEvent) error
}

// Result describes what a reconciliation did.  Applied is false when
// the callback was a duplicate or carried no terminal state, in which
// case the payment row was left untouched.
type Result struct {
    PaymentID  uint64              `json:"payment_id"`
    ExternalID string              `json:"external_id"`
    Status     model.PaymentStatus `json:"status"`
    Applied    bool                `json:"applied"`
}

// Reconciler applies provider callbacks to local state.  All writes
// for one callback happen in a single transaction with the payment
// row locked, so replays and concurrent callbacks for the same
// transaction serialize and at most one of them transitions the
// payment out of PENDING.
type Reconciler struct {
    db         TxBeginner
    gateways   *Registry
    payments   PaymentStore
    bookings   BookingSettler
    promos     PromoSettler
    formations EnrollmentSettler
    receipts   ReceiptPublisher
    log        *logrus.Logger
}

// NewReconciler wires a Reconciler.  receipts may be nil.
func NewReconciler(
    db TxBeginner,
    gateways *Registry,
    payments PaymentStore,
    bookings BookingSettler,
    promos PromoSettler,
    formations EnrollmentSettler,
    receipts ReceiptPublisher,
    log *logrus.Logger,
) *Reconciler {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Reconciler{
        db:         db,
        gateways:   gateways,
        payments:   payments,
        bookings:   bookings,
        promos:     promos,
        formations: formations,
        receipts:   receipts,
        log:        log,
    }
}

// terminalFor maps a normalized provider state onto the local
// terminal status.  The second return is false when the state is not
// terminal and the payment must stay PENDING.
func terminalFor(s NormalizedStatus) (model.PaymentStatus, bool) {
    switch s {
    case StatusSucceeded:
        return model.PaymentStatusCompleted, true
    case StatusFailed, StatusCancelled:
        return model.PaymentStatusFailed, true
    default:
        return "", false
    }
}

// Reconcile parses a provider callback and applies it.  It returns
// repository.ErrPaymentNotFound when the callback references no local
// payment, ErrBadWebhook when the payload cannot be parsed, and
// ErrUnknownProvider for an unrecognized provider segment.  Replays
// of an already-settled payment succeed with Applied=false.
func (r *Reconciler) Reconcile(ctx context.Context, provider model.PaymentProvider, payload []byte) (*Result, error) {
    gw, err := r.gateways.ByName(provider)
    if err != nil {
        return nil, err
    }
    ev, err := gw.InterpretWebhook(payload)
    if err != nil {
        return nil, err
    }

    res, err := r.apply(ctx, provider, ev)
    if err != nil {
        return nil, err
    }
    if res.Applied && r.receipts != nil {
        // Post-commit, fire and forget.  A lost receipt only costs a
        // log line, never the reconciliation.
        r.publishReceipt(res.PaymentID)
    }
    return res, nil
}

func (r *Reconciler) apply(ctx context.Context, provider model.PaymentProvider, ev *WebhookEvent) (*Result, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    p, err := r.payments.GetByExternalIDTx(ctx, tx, provider, ev.ExternalID)
    if err != nil {
        return nil, err
    }
    out := &Result{PaymentID: p.ID, ExternalID: p.ExternalID, Status: p.Status}

    if p.Status.Terminal() {
        // Duplicate delivery; the first callback already settled it.
        if err := tx.Commit(); err != nil {
            return nil, err
        }
        committed = true
        return out, nil
    }

    next, terminal := terminalFor(ev.Status)
    if !terminal {
        if err := tx.Commit(); err != nil {
            return nil, err
        }
        committed = true
        return out, nil
    }

    if next == model.PaymentStatusCompleted && ev.AmountMinor > 0 && ev.AmountMinor != p.Amount {
        // The customer's money moved at the provider but not for the
        // amount we expected.  Leave the payment PENDING and answer
        // the webhook with an error so the provider retries and an
        // operator can replay it once the discrepancy is resolved.
        r.log.WithFields(logrus.Fields{
            "payment_id": p.ID,
            "expected":   p.Amount,
            "received":   ev.AmountMinor,
        }).Warn("webhook amount mismatch, leaving payment pending")
        return nil, fmt.Errorf("payment %d: webhook amount %d does not match expected %d",
            p.ID, ev.AmountMinor, p.Amount)
    }

    if err := r.payments.SetStatusTx(ctx, tx, p.ID, next); err != nil {
        return nil, err
    }
    if next == model.PaymentStatusCompleted {
        if err := r.settle(ctx, tx, p); err != nil {
            return nil, err
        }
    } else {
        if err := r.abandon(ctx, tx, p); err != nil {
            return nil, err
        }
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    out.Status = next
    out.Applied = true
    return out, nil
}

// settle activates the payable entity after a successful payment.
func (r *Reconciler) settle(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    switch p.EntityType {
    case model.EntityBooking:
        if err := r.bookings.ConfirmTx(ctx, tx, p.EntityID); err != nil {
            return fmt.Errorf("confirm booking %d: %w", p.EntityID, err)
        }
        promoID, applied, err := r.promos.ConfirmUsageTx(ctx, tx, p.EntityID)
        if err != nil {
            return fmt.Errorf("confirm promo usage for booking %d: %w", p.EntityID, err)
        }
        if applied {
            if err := r.bookings.AttachPromoTx(ctx, tx, p.EntityID, promoID); err != nil {
                return fmt.Errorf("attach promo to booking %d: %w", p.EntityID, err)
            }
        }
        return nil
    case model.EntityEnrollment:
        if err := r.formations.ActivateTx(ctx, tx, p.EntityID, time.Now().UTC()); err != nil {
            return fmt.Errorf("activate enrollment %d: %w", p.EntityID, err)
        }
        return nil
    default:
        return fmt.Errorf("payment %d has unknown entity type %q", p.ID, p.EntityType)
    }
}

// abandon handles a failed payment.  A booking keeps its temporary
// reservation until the expiry job reclaims the slot, so the customer
// can retry with another provider; a pending enrollment is cancelled
// outright.
func (r *Reconciler) abandon(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    if p.EntityType != model.EntityEnrollment {
        return nil
    }
    if err := r.formations.CancelTx(ctx, tx, p.EntityID); err != nil {
        if errors.Is(err, repository.ErrInvalidTransition) {
            // Already active or cancelled; the failed attempt changes nothing.
            return nil
        }
        return fmt.Errorf("cancel enrollment %d: %w", p.EntityID, err)
    }
    return nil
}

func (r *Reconciler) publishReceipt(paymentID uint64) {
    p, err := r.payments.GetByID(context.Background(), paymentID)
    if err != nil {
        r.log.WithError(err).WithField("payment_id", paymentID).Warn("receipt lookup failed")
        return
    }
    event := queue.PaymentReceiptEvent{
        PaymentID:    p.ID,
        EntityType:   string(p.EntityType),
        EntityID:     p.EntityID,
        Provider:     string(p.Provider),
        ExternalID:   p.ExternalID,
        AmountMinor:  p.Amount,
        Currency:     p.Currency,
        Status:       string(p.Status),
        ReconciledAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
    }
    if err := r.receipts.PublishPaymentReceipt(context.Background(), event); err != nil {
        r.log.WithError(err).WithField("payment_id", p.ID).Warn("receipt publish failed")
    }
}
