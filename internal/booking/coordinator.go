package booking

import (
    "context"
    "fmt"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/repository"
)

// Store is the persistence contract the coordinator needs.  It is
// implemented by repository.BookingRepo; tests substitute an
// in-memory fake.  Every method that can claim a (slot, date) key is
// required to be atomic on its own (check-then-create under row
// locks), the coordinator's keyed lock only adds fairness and keeps
// contention out of the database.
type Store interface {
    CreateIfSlotFree(ctx context.Context, b *model.Booking) error
    GetByID(ctx context.Context, id uint64) (*model.Booking, error)
    UpdateStatusIf(ctx context.Context, id uint64, from []model.BookingStatus, to model.BookingStatus) (bool, error)
    ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
    Reschedule(ctx context.Context, id, newSlotID uint64, newDate string) error
}

// PromoRevoker reverses a validated promo usage when its booking is
// cancelled.  Implemented by repository.PromoRepo.
type PromoRevoker interface {
    RevokeUsage(ctx context.Context, bookingID uint64, reason string) (bool, error)
}

// Coordinator serializes booking state transitions.  All writes to
// bookings go through it so the occupancy invariant has exactly one
// enforcement point.
type Coordinator struct {
    store  Store
    locks  Locker
    promos PromoRevoker
    log    *logrus.Logger
}

// NewCoordinator wires a Coordinator.  promos may be nil when promo
// support is disabled (cancellations then skip revocation).
func NewCoordinator(store Store, locks Locker, promos PromoRevoker, log *logrus.Logger) *Coordinator {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Coordinator{store: store, locks: locks, promos: promos, log: log}
}

// lockKey builds the per-(slot, date) lock key.
func lockKey(slotID uint64, date string) string {
    return fmt.Sprintf("lock:slot:%d:%s", slotID, date)
}

// Reserve atomically claims (slotID, date) for the user and creates a
// TEMP_RESERVED booking carrying the given amounts.  Returns
// repository.ErrSlotTaken when an active-occupying booking (including
// an ON_LEAVE block) already holds the key, and ErrLockTimeout when
// the key could not be locked within the bounded wait.
func (c *Coordinator) Reserve(ctx context.Context, b *model.Booking) error {
    release, err := c.locks.Acquire(ctx, lockKey(b.SlotID, b.Date))
    if err != nil {
        return err
    }
    defer release()
    b.Status = model.BookingStatusTempReserved
    return c.store.CreateIfSlotFree(ctx, b)
}

// Confirm transitions a booking to CONFIRMED.  Idempotent when the
// booking is already confirmed.  Returns
// repository.ErrInvalidTransition when the booking has expired or was
// cancelled, which happens when the expiry job won the race.
func (c *Coordinator) Confirm(ctx context.Context, bookingID uint64) error {
    b, err := c.store.GetByID(ctx, bookingID)
    if err != nil {
        return err
    }
    switch b.Status {
    case model.BookingStatusConfirmed:
        return nil
    case model.BookingStatusTempReserved, model.BookingStatusTaken:
        ok, err := c.store.UpdateStatusIf(ctx, bookingID,
            []model.BookingStatus{model.BookingStatusTempReserved, model.BookingStatusTaken},
            model.BookingStatusConfirmed)
        if err != nil {
            return err
        }
        if !ok {
            // Lost a race; reload to tell confirm-after-confirm from
            // confirm-after-expire.
            cur, err := c.store.GetByID(ctx, bookingID)
            if err != nil {
                return err
            }
            if cur.Status == model.BookingStatusConfirmed {
                return nil
            }
            return repository.ErrInvalidTransition
        }
        return nil
    default:
        return repository.ErrInvalidTransition
    }
}

// Cancel transitions a booking to CANCELLED and revokes any validated
// promo usage attached to it.  Cancelling an already cancelled
// booking is a no-op; expired bookings cannot be cancelled.
func (c *Coordinator) Cancel(ctx context.Context, bookingID uint64, reason string) error {
    b, err := c.store.GetByID(ctx, bookingID)
    if err != nil {
        return err
    }
    switch b.Status {
    case model.BookingStatusCancelled:
        return nil
    case model.BookingStatusTempReserved, model.BookingStatusTaken, model.BookingStatusConfirmed, model.BookingStatusOnLeave:
        ok, err := c.store.UpdateStatusIf(ctx, bookingID,
            []model.BookingStatus{b.Status}, model.BookingStatusCancelled)
        if err != nil {
            return err
        }
        if !ok {
            return repository.ErrInvalidTransition
        }
        if c.promos != nil {
            if _, err := c.promos.RevokeUsage(ctx, bookingID, reason); err != nil {
                // The cancellation itself stands; the counter is
                // reconciled by an operator if this ever fires.
                c.log.WithError(err).WithField("booking_id", bookingID).
                    Warn("promo revocation failed after cancellation")
            }
        }
        return nil
    default:
        return repository.ErrInvalidTransition
    }
}

// Reschedule moves a confirmed booking to a new (slot, date) key
// under the same per-key lock discipline as Reserve.
func (c *Coordinator) Reschedule(ctx context.Context, bookingID, newSlotID uint64, newDate string) error {
    release, err := c.locks.Acquire(ctx, lockKey(newSlotID, newDate))
    if err != nil {
        return err
    }
    defer release()
    return c.store.Reschedule(ctx, bookingID, newSlotID, newDate)
}

// MarkOnLeave blocks a (slot, date) key by creating an ON_LEAVE
// booking, so customers cannot reserve it while staff are away.
func (c *Coordinator) MarkOnLeave(ctx context.Context, slotID uint64, date string) error {
    release, err := c.locks.Acquire(ctx, lockKey(slotID, date))
    if err != nil {
        return err
    }
    defer release()
    b := &model.Booking{SlotID: slotID, Date: date, Status: model.BookingStatusOnLeave}
    return c.store.CreateIfSlotFree(ctx, b)
}

// ExpireStale expires every TEMP_RESERVED booking older than
// olderThan and returns the count.  The underlying update is a
// compare-and-swap on status, so running concurrently with Confirm is
// safe: whichever commits first wins and the other side observes the
// new status.
func (c *Coordinator) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
    cutoff := time.Now().UTC().Add(-olderThan)
    n, err := c.store.ExpireStale(ctx, cutoff)
    if err != nil {
        return 0, err
    }
    if n > 0 {
        c.log.WithField("count", n).Info("expired stale reservations")
    }
    return n, nil
}
