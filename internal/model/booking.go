package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
    BookingStatusTempReserved BookingStatus = "TEMP_RESERVED" // created, awaiting payment
    BookingStatusTaken        BookingStatus = "TAKEN"         // manually registered by staff
    BookingStatusConfirmed    BookingStatus = "CONFIRMED"     // payment received
    BookingStatusOnLeave      BookingStatus = "ON_LEAVE"      // staff unavailable, key blocked
    BookingStatusCancelled    BookingStatus = "CANCELLED"
    BookingStatusExpired      BookingStatus = "EXPIRED"       // temporary reservation timed out
)

// ActiveOccupyingStatuses lists the states in which a booking occupies
// its (slot, date) key.  At most one booking per key may hold one of
// these states at any instant; this set drives the occupancy check in
// the booking repository and must match the statuses accepted there.
var ActiveOccupyingStatuses = []BookingStatus{
    BookingStatusTempReserved,
    BookingStatusTaken,
    BookingStatusConfirmed,
    BookingStatusOnLeave,
}

// Occupying reports whether the status claims its (slot, date) key.
func (s BookingStatus) Occupying() bool {
    switch s {
    case BookingStatusTempReserved, BookingStatusTaken, BookingStatusConfirmed, BookingStatusOnLeave:
        return true
    }
    return false
}

// Booking records one customer's claim on a (slot, date) pair for a
// given prestation.  Amounts are stored in integer minor units.  The
// pending promo code is the raw code entered at reservation time; it
// is only counted against the promo's usage once the booking is paid.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – customer who made the booking (zero for ON_LEAVE blocks).
//  SlotID         – slot being claimed.
//  Date           – calendar date in "2006-01-02" form.
//  PrestationID   – salon service booked (zero for ON_LEAVE blocks).
//  Status         – lifecycle state, see BookingStatus.
//  OriginalAmount – prestation price before discount.
//  DiscountAmount – promo discount applied, zero when none.
//  TotalAmount    – amount actually due (original minus discount).
//  PromoCodeID    – confirmed promo code, if any.
//  PendingPromo   – promo code entered but not yet confirmed by payment.
//  PrevSlotID     – slot before the last reschedule (nullable).
//  PrevDate       – date before the last reschedule (nullable).
//  Paid           – set once a payment completed for this booking.
type Booking struct {
    ID             uint64        // bookings.id
    UserID         uint64        // bookings.user_id
    SlotID         uint64        // bookings.slot_id
    Date           string        // bookings.date (DATE column)
    PrestationID   uint64        // bookings.prestation_id
    Status         BookingStatus // bookings.status
    OriginalAmount int64         // bookings.original_amount
    DiscountAmount int64         // bookings.discount_amount
    TotalAmount    int64         // bookings.total_amount
    PromoCodeID    *uint64       // bookings.promo_code_id (nullable)
    PendingPromo   *string       // bookings.pending_promo_code (nullable)
    PrevSlotID     *uint64       // bookings.prev_slot_id (nullable)
    PrevDate       *string       // bookings.prev_date (nullable)
    Paid           bool          // bookings.paid
    CreatedAt      time.Time     // bookings.created_at
    UpdatedAt      time.Time     // bookings.updated_at
}
