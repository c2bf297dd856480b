package payment

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"
    "testing"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/queue"
    "github.com/salonova/salon-reservation/internal/repository"
)

// memDriver backs a database handle whose transactions are no-ops, so
// the reconciler's transaction discipline runs unchanged against the
// in-memory stores below.
type memDriver struct{}

func (memDriver) Open(string) (driver.Conn, error) { return memConn{}, nil }

type memConn struct{}

func (memConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("unsupported") }
func (memConn) Close() error                        { return nil }
func (memConn) Begin() (driver.Tx, error)           { return memTx{}, nil }

type memTx struct{}

func (memTx) Commit() error   { return nil }
func (memTx) Rollback() error { return nil }

func init() { sql.Register("reconcilermem", memDriver{}) }

type fakePaymentStore struct {
    payment    *model.Payment
    statusSets int
}

func (s *fakePaymentStore) GetByExternalIDTx(_ context.Context, _ *sql.Tx, provider model.PaymentProvider, externalID string) (*model.Payment, error) {
    if s.payment == nil || s.payment.Provider != provider || s.payment.ExternalID != externalID {
        return nil, repository.ErrPaymentNotFound
    }
    cp := *s.payment
    return &cp, nil
}

func (s *fakePaymentStore) SetStatusTx(_ context.Context, _ *sql.Tx, id uint64, status model.PaymentStatus) error {
    if s.payment == nil || s.payment.ID != id {
        return repository.ErrPaymentNotFound
    }
    s.payment.Status = status
    s.statusSets++
    return nil
}

func (s *fakePaymentStore) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
    if s.payment == nil || s.payment.ID != id {
        return nil, repository.ErrPaymentNotFound
    }
    cp := *s.payment
    return &cp, nil
}

type fakeBookingSettler struct {
    confirms int
    attaches int
}

func (s *fakeBookingSettler) ConfirmTx(context.Context, *sql.Tx, uint64) error {
    s.confirms++
    return nil
}

func (s *fakeBookingSettler) AttachPromoTx(context.Context, *sql.Tx, uint64, uint64) error {
    s.attaches++
    return nil
}

// fakePromoSettler mirrors the repository's idempotence: only the
// first confirmation applies.
type fakePromoSettler struct {
    promoID   uint64
    confirmed bool
}

func (s *fakePromoSettler) ConfirmUsageTx(context.Context, *sql.Tx, uint64) (uint64, bool, error) {
    if s.promoID == 0 || s.confirmed {
        return s.promoID, false, nil
    }
    s.confirmed = true
    return s.promoID, true, nil
}

type fakeEnrollmentSettler struct {
    activated int
    cancelled int
}

func (s *fakeEnrollmentSettler) ActivateTx(context.Context, *sql.Tx, uint64, time.Time) error {
    s.activated++
    return nil
}

func (s *fakeEnrollmentSettler) CancelTx(context.Context, *sql.Tx, uint64) error {
    s.cancelled++
    return nil
}

type fakeReceiptPublisher struct {
    events []queue.PaymentReceiptEvent
}

func (p *fakeReceiptPublisher) PublishPaymentReceipt(_ context.Context, ev queue.PaymentReceiptEvent) error {
    p.events = append(p.events, ev)
    return nil
}

type reconcilerFixture struct {
    rec      *Reconciler
    payments *fakePaymentStore
    bookings *fakeBookingSettler
    promos   *fakePromoSettler
    enrolls  *fakeEnrollmentSettler
    receipts *fakeReceiptPublisher
}

func newReconcilerFixture(t *testing.T, p *model.Payment) *reconcilerFixture {
    t.Helper()
    db, err := sql.Open("reconcilermem", "")
    if err != nil {
        t.Fatalf("open mem db: %v", err)
    }
    t.Cleanup(func() { _ = db.Close() })

    f := &reconcilerFixture{
        payments: &fakePaymentStore{payment: p},
        bookings: &fakeBookingSettler{},
        promos:   &fakePromoSettler{promoID: 5},
        enrolls:  &fakeEnrollmentSettler{},
        receipts: &fakeReceiptPublisher{},
    }
    reg := NewRegistry(NewWaveGateway(WaveConfig{}))
    f.rec = NewReconciler(db, reg, f.payments, f.bookings, f.promos, f.enrolls, f.receipts, nil)
    return f
}

func pendingWavePayment(entityType model.EntityType, entityID uint64, amount int64) *model.Payment {
    return &model.Payment{
        ID:         7,
        EntityType: entityType,
        EntityID:   entityID,
        Provider:   model.ProviderWave,
        ExternalID: "cos-1",
        Amount:     amount,
        Currency:   "XOF",
        Status:     model.PaymentStatusPending,
    }
}

const waveSucceededPayload = `{"type":"checkout.session.completed","data":{"id":"cos-1","payment_status":"succeeded","amount":"12000","currency":"XOF"}}`

func TestReconcileSucceededConfirmsBookingOnce(t *testing.T) {
    f := newReconcilerFixture(t, pendingWavePayment(model.EntityBooking, 31, 12000))
    ctx := context.Background()

    res, err := f.rec.Reconcile(ctx, model.ProviderWave, []byte(waveSucceededPayload))
    if err != nil {
        t.Fatalf("first reconcile: %v", err)
    }
    if !res.Applied || res.Status != model.PaymentStatusCompleted {
        t.Fatalf("first reconcile = %+v, want applied COMPLETED", res)
    }
    if f.bookings.confirms != 1 || f.bookings.attaches != 1 {
        t.Fatalf("confirms=%d attaches=%d, want 1/1", f.bookings.confirms, f.bookings.attaches)
    }
    if !f.promos.confirmed {
        t.Fatal("promo usage was not confirmed")
    }
    if len(f.receipts.events) != 1 {
        t.Fatalf("receipts published = %d, want 1", len(f.receipts.events))
    }

    // The provider redelivers the same callback.  Nothing moves again.
    res, err = f.rec.Reconcile(ctx, model.ProviderWave, []byte(waveSucceededPayload))
    if err != nil {
        t.Fatalf("replay reconcile: %v", err)
    }
    if res.Applied {
        t.Fatal("replay was applied, want no-op")
    }
    if res.Status != model.PaymentStatusCompleted {
        t.Fatalf("replay status = %s, want COMPLETED", res.Status)
    }
    if f.payments.statusSets != 1 || f.bookings.confirms != 1 || f.bookings.attaches != 1 {
        t.Fatalf("replay moved state: statusSets=%d confirms=%d attaches=%d",
            f.payments.statusSets, f.bookings.confirms, f.bookings.attaches)
    }
    if len(f.receipts.events) != 1 {
        t.Fatalf("replay published a receipt: %d events", len(f.receipts.events))
    }
}

func TestReconcileAmountMismatchLeavesPaymentPending(t *testing.T) {
    f := newReconcilerFixture(t, pendingWavePayment(model.EntityBooking, 31, 9000))

    _, err := f.rec.Reconcile(context.Background(), model.ProviderWave, []byte(waveSucceededPayload))
    if err == nil {
        t.Fatal("expected an error on amount mismatch")
    }
    if f.payments.payment.Status != model.PaymentStatusPending {
        t.Fatalf("payment status = %s, want PENDING for operator replay", f.payments.payment.Status)
    }
    if f.payments.statusSets != 0 || f.bookings.confirms != 0 {
        t.Fatalf("mismatch moved state: statusSets=%d confirms=%d", f.payments.statusSets, f.bookings.confirms)
    }
    if len(f.receipts.events) != 0 {
        t.Fatalf("mismatch published a receipt: %d events", len(f.receipts.events))
    }

    // A corrected replay with the right amount settles normally.
    payload := `{"type":"checkout.session.completed","data":{"id":"cos-1","payment_status":"succeeded","amount":"9000","currency":"XOF"}}`
    res, err := f.rec.Reconcile(context.Background(), model.ProviderWave, []byte(payload))
    if err != nil {
        t.Fatalf("corrected reconcile: %v", err)
    }
    if !res.Applied || res.Status != model.PaymentStatusCompleted {
        t.Fatalf("corrected reconcile = %+v, want applied COMPLETED", res)
    }
}

func TestReconcileFailedEnrollmentCancels(t *testing.T) {
    f := newReconcilerFixture(t, pendingWavePayment(model.EntityEnrollment, 12, 20000))
    payload := `{"type":"checkout.session.failed","data":{"id":"cos-1","payment_status":"failed","amount":"20000","currency":"XOF"}}`

    res, err := f.rec.Reconcile(context.Background(), model.ProviderWave, []byte(payload))
    if err != nil {
        t.Fatalf("reconcile: %v", err)
    }
    if !res.Applied || res.Status != model.PaymentStatusFailed {
        t.Fatalf("reconcile = %+v, want applied FAILED", res)
    }
    if f.enrolls.cancelled != 1 || f.enrolls.activated != 0 {
        t.Fatalf("cancelled=%d activated=%d, want 1/0", f.enrolls.cancelled, f.enrolls.activated)
    }
}

func TestReconcilePendingStatusIsNoOp(t *testing.T) {
    f := newReconcilerFixture(t, pendingWavePayment(model.EntityBooking, 31, 12000))
    payload := `{"type":"checkout.session.created","data":{"id":"cos-1","payment_status":"processing","amount":"12000","currency":"XOF"}}`

    res, err := f.rec.Reconcile(context.Background(), model.ProviderWave, []byte(payload))
    if err != nil {
        t.Fatalf("reconcile: %v", err)
    }
    if res.Applied || res.Status != model.PaymentStatusPending {
        t.Fatalf("reconcile = %+v, want pending no-op", res)
    }
    if f.payments.statusSets != 0 {
        t.Fatalf("statusSets = %d, want 0", f.payments.statusSets)
    }
}

func TestReconcileUnknownTransaction(t *testing.T) {
    f := newReconcilerFixture(t, pendingWavePayment(model.EntityBooking, 31, 12000))
    payload := `{"type":"checkout.session.completed","data":{"id":"cos-other","payment_status":"succeeded","amount":"12000"}}`

    if _, err := f.rec.Reconcile(context.Background(), model.ProviderWave, []byte(payload)); !errors.Is(err, repository.ErrPaymentNotFound) {
        t.Fatalf("err = %v, want ErrPaymentNotFound", err)
    }
}
